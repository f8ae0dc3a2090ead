package config

// StorageConfig holds the settings of one named storage under linker.storage.
type StorageConfig struct {
	Type            string `yaml:"type"`             // "local", "gcs" or "s3".
	BucketName      string `yaml:"bucket_name"`      // Default bucket when a call passes "".
	PublicBaseURL   string `yaml:"public_base_url"`  // Prefix of public object URLs; a per-type default applies when empty.
	CredentialsFile string `yaml:"credentials_file"` // GCS service account key.
	BaseDir         string `yaml:"base_dir"`         // Root directory of the local adapter.
	Endpoint        string `yaml:"endpoint"`         // S3 endpoint host[:port].
	AccessKey       string `yaml:"access_key"`       // S3 access key.
	SecretKey       string `yaml:"secret_key"`       // S3 secret key.
	Region          string `yaml:"region"`           // S3 region.
	UseSSL          bool   `yaml:"use_ssl"`          // S3 over https.
}
