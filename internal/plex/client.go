// Carousel - Automated Collection Pinning and Rotation for Plex
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/carousel

// Package plex implements the Plex Media Server API client used by the
// pinning worker: library/collection listing, home-screen promotion,
// label management, and a lightweight connectivity probe.
//
// All calls authenticate with the X-Plex-Token header and go through
// automatic HTTP 429 retry with exponential backoff. The Breaker wrapper
// in breaker.go adds circuit-breaker protection for the worker's cycle
// calls so an unreachable server cannot stall the scheduler.
package plex

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/tomtom215/carousel/internal/logging"
	"github.com/tomtom215/carousel/internal/models"
)

// collectionType is Plex's metadata type id for collections, used by the
// section-wide edit endpoint for label changes.
const collectionType = "18"

// Client handles communication with the Plex Media Server API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// Section is a Plex library section (Movies, TV Shows, ...).
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"`
}

// sectionsResponse wraps GET /library/sections.
type sectionsResponse struct {
	MediaContainer struct {
		Directory []Section `json:"Directory"`
	} `json:"MediaContainer"`
}

// collectionMetadata is one entry from a section's collections listing.
type collectionMetadata struct {
	RatingKey  string `json:"ratingKey"`
	Title      string `json:"title"`
	ChildCount int    `json:"childCount"`
	Label      []struct {
		Tag string `json:"tag"`
	} `json:"Label,omitempty"`
}

// collectionsResponse wraps GET /library/sections/{key}/collections.
type collectionsResponse struct {
	MediaContainer struct {
		Size     int                  `json:"size"`
		Metadata []collectionMetadata `json:"Metadata"`
	} `json:"MediaContainer"`
}

// managedHub is one entry from a section's managed-hub listing. Promotion
// flags arrive as "0"/"1" strings from Plex.
type managedHub struct {
	MetadataItemID     string `json:"metadataItemId"`
	Title              string `json:"title"`
	PromotedToOwnHome  string `json:"promotedToOwnHome"`
	PromotedToRecommed string `json:"promotedToRecommended"`
}

// manageResponse wraps GET /hubs/sections/{key}/manage.
type manageResponse struct {
	MediaContainer struct {
		Hub []managedHub `json:"Hub"`
	} `json:"MediaContainer"`
}

// identityResponse wraps GET /identity.
type identityResponse struct {
	MediaContainer struct {
		MachineIdentifier string `json:"machineIdentifier"`
		Version           string `json:"version"`
	} `json:"MediaContainer"`
}

// NewClient creates a Plex API client.
//
// Parameters:
//   - baseURL: Plex Media Server URL (e.g., "http://localhost:32400")
//   - token: X-Plex-Token for authentication
//   - timeout: per-request HTTP timeout
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// TestConnection probes the server's /identity endpoint and returns the
// server version on success. It is independent of the worker loop.
func (c *Client) TestConnection(ctx context.Context) (string, error) {
	var resp identityResponse
	if err := c.doJSONRequest(ctx, "/identity", nil, &resp); err != nil {
		return "", fmt.Errorf("identity probe: %w", err)
	}
	return resp.MediaContainer.Version, nil
}

// Sections returns all library sections on the server.
func (c *Client) Sections(ctx context.Context) ([]Section, error) {
	var resp sectionsResponse
	if err := c.doJSONRequest(ctx, "/library/sections", nil, &resp); err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	return resp.MediaContainer.Directory, nil
}

// SectionByTitle finds a section by its exact title.
func (c *Client) SectionByTitle(ctx context.Context, title string) (*Section, error) {
	sections, err := c.Sections(ctx)
	if err != nil {
		return nil, err
	}
	for i := range sections {
		if sections[i].Title == title {
			return &sections[i], nil
		}
	}
	return nil, fmt.Errorf("library %q not found on server", title)
}

// Collections lists the collections of a section as domain snapshots,
// including their current home-screen promotion state.
func (c *Client) Collections(ctx context.Context, section *Section) ([]models.Collection, error) {
	var resp collectionsResponse
	path := fmt.Sprintf("/library/sections/%s/collections", section.Key)
	if err := c.doJSONRequest(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list collections for %q: %w", section.Title, err)
	}

	promoted, err := c.promotedItems(ctx, section)
	if err != nil {
		// Promotion state is needed for the unpin diff; without it the
		// synchronizer cannot run safely for this library.
		return nil, err
	}

	collections := make([]models.Collection, 0, len(resp.MediaContainer.Metadata))
	for _, md := range resp.MediaContainer.Metadata {
		if md.Title == "" {
			logging.Debug().Str("rating_key", md.RatingKey).Msg("Skipping collection with empty title")
			continue
		}
		labels := make([]string, 0, len(md.Label))
		for _, l := range md.Label {
			labels = append(labels, l.Tag)
		}
		_, pinned := promoted[md.RatingKey]
		collections = append(collections, models.Collection{
			RatingKey: md.RatingKey,
			Title:     md.Title,
			Library:   section.Title,
			ItemCount: md.ChildCount,
			Labels:    labels,
			Pinned:    pinned,
		})
	}
	return collections, nil
}

// promotedItems returns the rating keys currently promoted to the owner's
// home screen for a section.
func (c *Client) promotedItems(ctx context.Context, section *Section) (map[string]struct{}, error) {
	var resp manageResponse
	path := fmt.Sprintf("/hubs/sections/%s/manage", section.Key)
	if err := c.doJSONRequest(ctx, path, nil, &resp); err != nil {
		return nil, fmt.Errorf("list promoted hubs for %q: %w", section.Title, err)
	}

	promoted := make(map[string]struct{})
	for _, hub := range resp.MediaContainer.Hub {
		if hub.PromotedToOwnHome == "1" {
			promoted[hub.MetadataItemID] = struct{}{}
		}
	}
	return promoted, nil
}

// Pin promotes a collection to the owner's and shared users' home screens.
func (c *Client) Pin(ctx context.Context, section *Section, ratingKey string) error {
	query := url.Values{}
	query.Set("metadataItemId", ratingKey)
	query.Set("promotedToOwnHome", "1")
	query.Set("promotedToSharedHome", "1")

	err := c.doRequest(ctx, requestConfig{
		method:      http.MethodPost,
		path:        fmt.Sprintf("/hubs/sections/%s/manage", section.Key),
		query:       query,
		expectNoErr: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("pin %s in %q: %w", ratingKey, section.Title, err)
	}
	return nil
}

// Unpin demotes a collection from the home screens.
func (c *Client) Unpin(ctx context.Context, section *Section, ratingKey string) error {
	query := url.Values{}
	query.Set("promotedToOwnHome", "0")
	query.Set("promotedToSharedHome", "0")

	err := c.doRequest(ctx, requestConfig{
		method:      http.MethodPut,
		path:        fmt.Sprintf("/hubs/sections/%s/manage/%s", section.Key, ratingKey),
		query:       query,
		expectNoErr: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("unpin %s in %q: %w", ratingKey, section.Title, err)
	}
	return nil
}

// AddLabel attaches a label tag to a collection.
func (c *Client) AddLabel(ctx context.Context, section *Section, ratingKey, label string) error {
	query := url.Values{}
	query.Set("type", collectionType)
	query.Set("id", ratingKey)
	query.Set("label.locked", "1")
	query.Set("label[0].tag.tag", label)

	err := c.doRequest(ctx, requestConfig{
		method:      http.MethodPut,
		path:        fmt.Sprintf("/library/sections/%s/all", section.Key),
		query:       query,
		expectNoErr: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("add label %q to %s: %w", label, ratingKey, err)
	}
	return nil
}

// RemoveLabel detaches a label tag from a collection.
func (c *Client) RemoveLabel(ctx context.Context, section *Section, ratingKey, label string) error {
	query := url.Values{}
	query.Set("type", collectionType)
	query.Set("id", ratingKey)
	query.Set("label.locked", "1")
	query.Set("label[].tag.tag-", label)

	err := c.doRequest(ctx, requestConfig{
		method:      http.MethodPut,
		path:        fmt.Sprintf("/library/sections/%s/all", section.Key),
		query:       query,
		expectNoErr: true,
	}, nil)
	if err != nil {
		return fmt.Errorf("remove label %q from %s: %w", label, ratingKey, err)
	}
	return nil
}
