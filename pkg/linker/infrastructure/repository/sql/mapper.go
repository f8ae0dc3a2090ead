package sql

import (
	model "github.com/tigerroll/imagelink/pkg/linker/core/domain/model"
)

func toDomainProduct(e *ProductEntity) model.Product {
	return model.Product{ID: e.ID, SKU: e.SKU, Name: e.Name, IsActive: e.IsActive}
}

func fromDomainImageLink(l *model.ImageLink) *ImageLinkEntity {
	if l == nil {
		return nil
	}
	return &ImageLinkEntity{
		ID:              l.ID,
		ProductID:       l.ProductID,
		ImageURL:        l.ImageURL,
		AltText:         l.AltText,
		IsActive:        l.IsActive,
		IsPrimary:       l.IsPrimary,
		SortOrder:       l.SortOrder,
		MatchConfidence: l.MatchConfidence,
		MatchMetadata:   l.MatchMetadata,
		AutoMatched:     l.AutoMatched,
		CreatedAt:       l.CreatedAt,
	}
}

func toDomainImageLink(e *ImageLinkEntity) *model.ImageLink {
	if e == nil {
		return nil
	}
	return &model.ImageLink{
		ID:              e.ID,
		ProductID:       e.ProductID,
		ImageURL:        e.ImageURL,
		AltText:         e.AltText,
		IsActive:        e.IsActive,
		IsPrimary:       e.IsPrimary,
		SortOrder:       e.SortOrder,
		MatchConfidence: e.MatchConfidence,
		MatchMetadata:   e.MatchMetadata,
		AutoMatched:     e.AutoMatched,
		CreatedAt:       e.CreatedAt,
	}
}

func fromDomainImageCandidate(c *model.ImageCandidate) *ImageCandidateEntity {
	if c == nil {
		return nil
	}
	return &ImageCandidateEntity{
		ID:              c.ID,
		ProductID:       c.ProductID,
		ImageURL:        c.ImageURL,
		AltText:         c.AltText,
		MatchConfidence: c.MatchConfidence,
		MatchMetadata:   c.MatchMetadata,
		Status:          c.Status,
		CreatedAt:       c.CreatedAt,
		ReviewedAt:      c.ReviewedAt,
	}
}

func toDomainImageCandidate(e *ImageCandidateEntity) *model.ImageCandidate {
	if e == nil {
		return nil
	}
	return &model.ImageCandidate{
		ID:              e.ID,
		ProductID:       e.ProductID,
		ImageURL:        e.ImageURL,
		AltText:         e.AltText,
		MatchConfidence: e.MatchConfidence,
		MatchMetadata:   e.MatchMetadata,
		Status:          e.Status,
		CreatedAt:       e.CreatedAt,
		ReviewedAt:      e.ReviewedAt,
	}
}

func fromDomainScanSession(s *model.ScanSession) *ScanSessionEntity {
	if s == nil {
		return nil
	}
	return &ScanSessionEntity{
		ID:                  s.ID,
		Status:              s.Status,
		CurrentStepIndex:    s.CurrentStepIndex,
		TotalSteps:          s.TotalSteps,
		StepName:            s.StepName,
		ProgressPercent:     s.ProgressPercent,
		CandidatesPromoted:  s.Counters.CandidatesPromoted,
		ProductsScanned:     s.Counters.ProductsScanned,
		ImagesScanned:       s.Counters.ImagesScanned,
		DirectLinksCreated:  s.Counters.DirectLinksCreated,
		CandidatesCreated:   s.Counters.CandidatesCreated,
		Errors:              s.Errors,
		StepErrors:          s.StepErrors,
		Summary:             s.Summary,
		ConfidenceThreshold: s.ConfidenceThreshold,
		HighThreshold:       s.HighThreshold,
		StartedAt:           s.StartedAt,
		CompletedAt:         s.CompletedAt,
		UpdatedAt:           s.UpdatedAt,
		Version:             s.Version,
	}
}

func toDomainScanSession(e *ScanSessionEntity) *model.ScanSession {
	if e == nil {
		return nil
	}
	s := &model.ScanSession{
		ID:               e.ID,
		Status:           e.Status,
		CurrentStepIndex: e.CurrentStepIndex,
		TotalSteps:       e.TotalSteps,
		StepName:         e.StepName,
		ProgressPercent:  e.ProgressPercent,
		Counters: model.Counters{
			CandidatesPromoted: e.CandidatesPromoted,
			ProductsScanned:    e.ProductsScanned,
			ImagesScanned:      e.ImagesScanned,
			DirectLinksCreated: e.DirectLinksCreated,
			CandidatesCreated:  e.CandidatesCreated,
		},
		Errors:              e.Errors,
		StepErrors:          e.StepErrors,
		Summary:             e.Summary,
		ConfidenceThreshold: e.ConfidenceThreshold,
		HighThreshold:       e.HighThreshold,
		StartedAt:           e.StartedAt,
		CompletedAt:         e.CompletedAt,
		UpdatedAt:           e.UpdatedAt,
		Version:             e.Version,
	}
	if s.Errors == nil {
		s.Errors = model.FailureList{}
	}
	if s.StepErrors == nil {
		s.StepErrors = model.StepFailures{}
	}
	return s
}
