package service

import (
	"context"

	"todo-planner/internal/model"
	"todo-planner/internal/repository"
)

// CategoryService provides helpers around categories.
type CategoryService struct {
	repo *repository.CategoryRepository
}

func NewCategoryService(repo *repository.CategoryRepository) *CategoryService {
	return &CategoryService{repo: repo}
}

func (s *CategoryService) List(ctx context.Context, user *model.User) ([]model.Category, error) {
	return s.repo.ListByUser(ctx, user.ID)
}

// GetOrCreate resolves a category by name for the user. Empty names yield nil.
func (s *CategoryService) GetOrCreate(ctx context.Context, user *model.User, name string) (*model.Category, error) {
	return s.repo.GetOrCreate(ctx, user.ID, name)
}
