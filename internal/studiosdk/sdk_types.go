package studiosdk

import (
	"context"

	"github.com/openmined/studiosync/internal/version"
)

const (
	HeaderUserAgent = "User-Agent"
	HeaderVersion   = "X-StudioSync-Version"
)

var UserAgent = version.UserAgent("")

// RecipeService is the recipe half of the studio API.
type RecipeService interface {
	ListRecipes(ctx context.Context, projectKey string) ([]RecipeSummary, error)
	GetRecipe(ctx context.Context, projectKey, recipeName string) (*Recipe, error)
	SaveRecipe(ctx context.Context, projectKey, recipeName string, payload []byte) (int64, error)
}

// FilesystemService is the capability shared by plugin and library trees.
// Paths are slash separated and relative to the tree root.
type FilesystemService interface {
	List(ctx context.Context) ([]*FileNode, error)
	Download(ctx context.Context, path string) ([]byte, error)
	Upload(ctx context.Context, path string, data []byte) error
	Delete(ctx context.Context, path string) error
	CreateFolder(ctx context.Context, path string) error
}

// Service is everything the sync engine needs from one studio instance.
type Service interface {
	Recipes() RecipeService
	Plugin(pluginID string) FilesystemService
	Library(projectKey string) FilesystemService
}
