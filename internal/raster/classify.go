package raster

import (
	"fmt"

	"github.com/couchcryptid/climate-risk-explorer/internal/domain"
)

// ClassifyFile reads the raster at path and classifies it with the default
// palette. On error no image is produced.
func ClassifyFile(path string) (domain.Classification, error) {
	r, err := Read(path)
	if err != nil {
		return domain.Classification{}, err
	}
	return domain.Classify(r), nil
}

// ClassifyFileWithPalette is ClassifyFile with a caller-supplied palette.
func ClassifyFileWithPalette(path string, palette domain.Palette) (domain.Classification, *domain.Raster, error) {
	r, err := Read(path)
	if err != nil {
		return domain.Classification{}, nil, fmt.Errorf("classify: %w", err)
	}
	return domain.ClassifyWithPalette(r, palette), r, nil
}
