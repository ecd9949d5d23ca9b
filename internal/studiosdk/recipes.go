package studiosdk

import (
	"context"
	"fmt"
	"net/url"

	"github.com/imroc/req/v3"
)

const (
	recipesPath = "/public/api/projects/%s/recipes/"
	recipePath  = "/public/api/projects/%s/recipes/%s"
)

type RecipeAPI struct {
	client *req.Client
}

var _ RecipeService = (*RecipeAPI)(nil)

func newRecipeAPI(client *req.Client) *RecipeAPI {
	return &RecipeAPI{
		client: client,
	}
}

// ListRecipes lists the recipes of a project with their current version.
func (r *RecipeAPI) ListRecipes(ctx context.Context, projectKey string) (recipes []RecipeSummary, err error) {
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&recipes).
		Get(fmt.Sprintf(recipesPath, url.PathEscape(projectKey)))

	if err := handleAPIError(resp, err, "recipe list"); err != nil {
		return nil, err
	}

	return recipes, nil
}

// GetRecipe loads a recipe's definition, version and payload.
func (r *RecipeAPI) GetRecipe(ctx context.Context, projectKey, recipeName string) (*Recipe, error) {
	var body recipeAndPayload
	resp, err := r.client.R().
		SetContext(ctx).
		SetSuccessResult(&body).
		Get(r.recipeURL(projectKey, recipeName))

	if err := handleAPIError(resp, err, "recipe get"); err != nil {
		return nil, err
	}

	var def recipeDefinition
	if len(body.Recipe) > 0 {
		if err := jsonUnmarshal(body.Recipe, &def); err != nil {
			return nil, fmt.Errorf("recipe get: decode definition: %w", err)
		}
	}

	name := def.Name
	if name == "" {
		name = recipeName
	}

	return &Recipe{
		Name:       name,
		Version:    def.VersionTag.VersionNumber,
		Payload:    []byte(body.Payload),
		Definition: body.Recipe,
	}, nil
}

// SaveRecipe replaces the recipe payload and returns the version assigned by the server.
func (r *RecipeAPI) SaveRecipe(ctx context.Context, projectKey, recipeName string, payload []byte) (int64, error) {
	current, err := r.GetRecipe(ctx, projectKey, recipeName)
	if err != nil {
		return 0, err
	}

	resp, err := r.client.R().
		SetContext(ctx).
		SetBody(&recipeAndPayload{
			Recipe:  current.Definition,
			Payload: string(payload),
		}).
		Put(r.recipeURL(projectKey, recipeName))

	if err := handleAPIError(resp, err, "recipe save"); err != nil {
		return 0, err
	}

	saved, err := r.GetRecipe(ctx, projectKey, recipeName)
	if err != nil {
		return 0, err
	}

	return saved.Version, nil
}

func (r *RecipeAPI) recipeURL(projectKey, recipeName string) string {
	return fmt.Sprintf(recipePath, url.PathEscape(projectKey), url.PathEscape(recipeName))
}
