package model

import (
	"time"

	"github.com/google/uuid"
)

// CandidateStatus is the review state of an ImageCandidate.
type CandidateStatus string

const (
	CandidatePending  CandidateStatus = "pending"
	CandidatePromoted CandidateStatus = "promoted"
	CandidateRejected CandidateStatus = "rejected"
)

// ImageLink is a confirmed product-image association.
type ImageLink struct {
	ID              string
	ProductID       string
	ImageURL        string
	AltText         string
	IsActive        bool
	IsPrimary       bool
	SortOrder       int
	MatchConfidence int
	MatchMetadata   MatchMetadata
	AutoMatched     bool
	CreatedAt       time.Time
}

// ImageCandidate is a suggested association awaiting human review.
type ImageCandidate struct {
	ID              string
	ProductID       string
	ImageURL        string
	AltText         string
	MatchConfidence int
	MatchMetadata   MatchMetadata
	Status          CandidateStatus
	CreatedAt       time.Time
	ReviewedAt      *time.Time
}

// NewID returns a random UUID string.
func NewID() string {
	return uuid.New().String()
}

// NewPrimaryLink builds the auto-matched primary link written for a high confidence match.
func NewPrimaryLink(productID, imageURL, altText string, confidence int, meta MatchMetadata, now time.Time) *ImageLink {
	return &ImageLink{
		ID:              NewID(),
		ProductID:       productID,
		ImageURL:        imageURL,
		AltText:         altText,
		IsActive:        true,
		IsPrimary:       true,
		SortOrder:       1,
		MatchConfidence: confidence,
		MatchMetadata:   meta,
		AutoMatched:     true,
		CreatedAt:       now,
	}
}

// Promote converts a candidate into a primary link, tagging the metadata with the
// candidate id and the promoting session.
func (c *ImageCandidate) Promote(sessionID string, now time.Time) *ImageLink {
	meta := c.MatchMetadata
	meta.PromotedFrom = c.ID
	meta.SessionID = sessionID
	return NewPrimaryLink(c.ProductID, c.ImageURL, c.AltText, c.MatchConfidence, meta, now)
}
