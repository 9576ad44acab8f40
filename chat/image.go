package chat

import (
	"context"
	"errors"
	"strconv"

	"hangout-service/model"

	"gorm.io/gorm"
)

// SaveImage stores an uploaded image blob and returns its id; image
// messages carry that id as payload instead of the blob itself.
func (s *Service) SaveImage(ctx context.Context, data string) (string, error) {
	image := model.MessageImage{Data: data}
	if err := s.db.WithContext(ctx).Create(&image).Error; err != nil {
		return "", err
	}
	return strconv.FormatUint(uint64(image.ID), 10), nil
}

// GetImage resolves an image payload id back to the stored blob.
func (s *Service) GetImage(ctx context.Context, id string) (string, error) {
	image := new(model.MessageImage)
	if err := s.db.WithContext(ctx).First(image, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", ErrNotFound
		}
		return "", err
	}
	return image.Data, nil
}
