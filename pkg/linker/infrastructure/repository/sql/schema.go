package sql

import (
	"time"

	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

// ProductEntity is the read model of the catalog table.
type ProductEntity struct {
	ID       string `gorm:"primaryKey"`
	SKU      *string
	Name     string
	IsActive bool
}

func (ProductEntity) TableName() string {
	return "products"
}

// ImageLinkEntity is the persistence model of model.ImageLink.
type ImageLinkEntity struct {
	ID              string `gorm:"primaryKey"`
	ProductID       string
	ImageURL        string `gorm:"column:image_url"`
	AltText         string
	IsActive        bool
	IsPrimary       bool
	SortOrder       int
	MatchConfidence int
	MatchMetadata   model.MatchMetadata
	AutoMatched     bool
	CreatedAt       time.Time
}

func (ImageLinkEntity) TableName() string {
	return "product_images"
}

// ImageCandidateEntity is the persistence model of model.ImageCandidate.
type ImageCandidateEntity struct {
	ID              string `gorm:"primaryKey"`
	ProductID       string
	ImageURL        string `gorm:"column:image_url"`
	AltText         string
	MatchConfidence int
	MatchMetadata   model.MatchMetadata
	Status          model.CandidateStatus
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

func (ImageCandidateEntity) TableName() string {
	return "product_image_candidates"
}

// ScanSessionEntity is the persistence model of model.ScanSession. Counters are flattened
// into columns.
type ScanSessionEntity struct {
	ID                  string `gorm:"primaryKey"`
	Status              model.SessionStatus
	CurrentStepIndex    int
	TotalSteps          int
	StepName            string
	ProgressPercent     float64
	CandidatesPromoted  int64
	ProductsScanned     int64
	ImagesScanned       int64
	DirectLinksCreated  int64
	CandidatesCreated   int64
	Errors              model.FailureList
	StepErrors          model.StepFailures
	Summary             *model.SessionSummary
	ConfidenceThreshold int
	HighThreshold       int
	StartedAt           time.Time
	CompletedAt         *time.Time
	UpdatedAt           time.Time `gorm:"autoUpdateTime:false"`
	Version             int
}

func (ScanSessionEntity) TableName() string {
	return "scan_sessions"
}
