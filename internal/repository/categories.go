package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/Mouaddiguoug/feetflight/internal/graphdb"
	"github.com/Mouaddiguoug/feetflight/internal/models"
)

// Neo4jCategoryRepository stores categories through the generic repository;
// they are plain nodes with no relationships of their own.
type Neo4jCategoryRepository struct {
	repo *graphdb.Repository[models.Category]
}

func NewCategoryRepository(pm *graphdb.PersistenceManager) (*Neo4jCategoryRepository, error) {
	repo, err := graphdb.RepositoryFor[models.Category](pm)
	if err != nil {
		return nil, err
	}
	return &Neo4jCategoryRepository{repo: repo}, nil
}

func (r *Neo4jCategoryRepository) List(ctx context.Context) ([]models.Category, error) {
	found, err := r.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Category, len(found))
	for i, c := range found {
		out[i] = *c
	}
	return out, nil
}

func (r *Neo4jCategoryRepository) Create(ctx context.Context, c *models.Category) error {
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	if c.Slug == "" {
		c.Slug = models.CategorySlug(c.Name)
	}
	return r.repo.Save(ctx, c)
}

func (r *Neo4jCategoryRepository) FindByID(ctx context.Context, id string) (*models.Category, error) {
	return r.repo.FindByID(ctx, id)
}

func (r *Neo4jCategoryRepository) SlugTaken(ctx context.Context, slug string) (bool, error) {
	found, err := r.repo.FindByProperty(ctx, "slug", slug)
	if err != nil {
		return false, err
	}
	return len(found) > 0, nil
}

func (r *Neo4jCategoryRepository) Count(ctx context.Context) (int64, error) {
	return r.repo.Count(ctx)
}

// Delete removes the category. Albums filed under it become uncategorized.
func (r *Neo4jCategoryRepository) Delete(ctx context.Context, id string) error {
	if _, err := r.repo.FindByID(ctx, id); err != nil {
		return err
	}
	return r.repo.Delete(ctx, id)
}
