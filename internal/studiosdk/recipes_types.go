package studiosdk

import (
	"github.com/goccy/go-json"
)

type VersionTag struct {
	VersionNumber int64  `json:"versionNumber"`
	LastModifiedBy any   `json:"lastModifiedBy,omitempty"`
	LastModifiedOn int64 `json:"lastModifiedOn,omitempty"`
}

// RecipeSummary is one entry of a project's recipe listing.
type RecipeSummary struct {
	Name       string     `json:"name"`
	Type       string     `json:"type,omitempty"`
	VersionTag VersionTag `json:"versionTag"`
}

func (r RecipeSummary) Version() int64 {
	return r.VersionTag.VersionNumber
}

// Recipe is a recipe definition together with its code payload.
type Recipe struct {
	Name       string
	Version    int64
	Payload    []byte
	Definition json.RawMessage
}

type recipeDefinition struct {
	Name       string     `json:"name"`
	VersionTag VersionTag `json:"versionTag"`
}

type recipeAndPayload struct {
	Recipe  json.RawMessage `json:"recipe"`
	Payload string          `json:"payload"`
}
