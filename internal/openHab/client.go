package openHab

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/jgulick48/cloud-bindings/internal/binding"
)

const (
	itemEndpoint = "rest/items"
)

type Client interface {
	GetItems() ([]EnrichedItemDTO, error)
	UpdateItemState(name string, state string) error
}

type client struct {
	openHabHost string
	httpClient  *http.Client
}

func NewClient(host string, httpClient *http.Client) Client {
	return &client{
		openHabHost: strings.TrimSuffix(host, "/"),
		httpClient:  binding.NewClient(httpClient, binding.DefaultTimeout),
	}
}

// GetItems returns every item defined on the openHAB host.
func (c *client) GetItems() ([]EnrichedItemDTO, error) {
	var items []EnrichedItemDTO
	if err := c.getJSON(fmt.Sprintf("%s/%s?recursive=false", c.openHabHost, itemEndpoint), &items); err != nil {
		return []EnrichedItemDTO{}, err
	}
	return items, nil
}

func (c *client) getJSON(target string, value interface{}) error {
	req, err := http.NewRequest(http.MethodGet, target, nil)
	if err != nil {
		log.Error().Err(err).Str("url", target).Msg("Error creating request for openHAB")
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Error().Err(err).Str("url", target).Msg("Error making request to openHAB")
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		log.Warn().Int("status", resp.StatusCode).Str("url", target).Msg("Invalid response from openHAB, expecting 200")
		return binding.UnexpectedStatus(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(value); err != nil {
		log.Error().Err(err).Str("url", target).Msg("Unable to decode message from openHAB")
		return err
	}
	return nil
}

// UpdateItemState sets an item's state without sending a command to its
// bindings.
func (c *client) UpdateItemState(name string, state string) error {
	target := fmt.Sprintf("%s/%s/%s/state", c.openHabHost, itemEndpoint, url.PathEscape(name))
	req, err := http.NewRequest(http.MethodPut, target, strings.NewReader(state))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("unable to update %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted && resp.StatusCode != http.StatusOK {
		return binding.UnexpectedStatus(resp)
	}
	log.Debug().Str("item", name).Str("state", state).Msg("Updated openHAB item state")
	return nil
}
