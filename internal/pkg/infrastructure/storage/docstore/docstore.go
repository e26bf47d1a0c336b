package docstore

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/diwise/service-chassis/pkg/infrastructure/o11y/logging"
	"github.com/elastic/go-elasticsearch/v8"

	cserrors "github.com/52north/connected-systems-go/pkg/csa/errors"
	"github.com/52north/connected-systems-go/pkg/csa/types"
)

// Config carries the connection settings for the document store.
type Config struct {
	Host        string `yaml:"host"`
	Port        string `yaml:"port"`
	User        string `yaml:"user"`
	Password    string `yaml:"password"`
	VerifyCerts bool   `yaml:"verifyCerts"`
}

func (c Config) address() string {
	return fmt.Sprintf("https://%s:%s", c.Host, c.Port)
}

// Store is the document store boundary the providers depend on.
type Store interface {
	Search(ctx context.Context, index string, q *Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error)
	Index(ctx context.Context, index, id string, doc any) error
	Get(ctx context.Context, index, id string) (map[string]any, error)
	Delete(ctx context.Context, index, id string) error
	Exists(ctx context.Context, index string, q *Query) (bool, error)
	IDs(ctx context.Context, index string, q *Query, limit int) ([]string, error)
	EnsureIndices(ctx context.Context, mappings map[string]M) error
}

// Connector wraps a single shared Elasticsearch client. One connector
// is created at startup and lives for the process lifetime.
type Connector struct {
	client *elasticsearch.Client
}

// Connect creates the client, pings the cluster and gates on the major
// version of the backend.
func Connect(ctx context.Context, cfg Config) (*Connector, error) {
	log := logging.GetFromContext(ctx)

	esCfg := elasticsearch.Config{
		Addresses: []string{cfg.address()},
		Username:  cfg.User,
		Password:  cfg.Password,
	}

	if !cfg.VerifyCerts {
		esCfg.Transport = &http.Transport{
			TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
		}
	}

	client, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create client: %w", err)
	}

	res, err := client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to %s: %w", cfg.address(), err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, fmt.Errorf("cluster info request failed: %s", res.String())
	}

	info := struct {
		Version struct {
			Number string `json:"number"`
		} `json:"version"`
	}{}

	if err := json.NewDecoder(res.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode cluster info: %w", err)
	}

	major, _ := strconv.Atoi(strings.SplitN(info.Version.Number, ".", 2)[0])
	if major < 8 {
		return nil, fmt.Errorf("unsupported backend version %s (requires >= 8)", info.Version.Number)
	}

	log.Info("connected to document store", "address", cfg.address(), "version", info.Version.Number)

	return &Connector{client: client}, nil
}

type searchResponse struct {
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			ID     string         `json:"_id"`
			Source map[string]any `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// Search runs a paged query. When the query carries an explicit id
// filter and nothing matches, the result is a not-found error; other
// empty results are returned as empty collections. The nextURL
// callback is only invoked when more results exist beyond this page.
func (c *Connector) Search(ctx context.Context, index string, q *Query, offset, limit int, nextURL func() string) (*types.CollectionResult, error) {
	body, err := json.Marshal(q.Body(offset, limit))
	if err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}

	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(index),
		c.client.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, cserrors.NewInternalError(fmt.Sprintf("search on %s failed: %s", index, res.String()))
	}

	response := searchResponse{}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}

	if len(response.Hits.Hits) == 0 && q.HasIDFilter() {
		return nil, cserrors.NewNotFoundError(fmt.Sprintf("no such entity in %s", index))
	}

	result := &types.CollectionResult{
		Items: make([]map[string]any, 0, len(response.Hits.Hits)),
		Links: []types.Link{},
	}

	for _, hit := range response.Hits.Hits {
		item := hit.Source
		if item == nil {
			item = map[string]any{}
		}
		item["id"] = hit.ID
		result.Items = append(result.Items, item)
	}

	if response.Hits.Total.Value > offset+limit && nextURL != nil {
		result.Links = append(result.Links, types.Link{
			Title: "next page",
			Rel:   "next",
			Href:  nextURL(),
		})
	}

	return result, nil
}

// Index persists a document under the given id, replacing any previous
// version, and refreshes so subsequent reads observe the write.
func (c *Connector) Index(ctx context.Context, index, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return cserrors.NewInternalError(err.Error())
	}

	res, err := c.client.Index(index, bytes.NewReader(body),
		c.client.Index.WithContext(ctx),
		c.client.Index.WithDocumentID(id),
		c.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return cserrors.NewInternalError(err.Error())
	}
	defer res.Body.Close()

	if res.IsError() {
		return cserrors.NewInternalError(fmt.Sprintf("index into %s failed: %s", index, res.String()))
	}

	return nil
}

// Get fetches a single document by id.
func (c *Connector) Get(ctx context.Context, index, id string) (map[string]any, error) {
	res, err := c.client.Get(index, id, c.client.Get.WithContext(ctx))
	if err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return nil, cserrors.NewNotFoundError(fmt.Sprintf("%s/%s does not exist", index, id))
	}

	if res.IsError() {
		return nil, cserrors.NewInternalError(fmt.Sprintf("get from %s failed: %s", index, res.String()))
	}

	response := struct {
		Source map[string]any `json:"_source"`
	}{}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}

	if response.Source == nil {
		response.Source = map[string]any{}
	}
	response.Source["id"] = id

	return response.Source, nil
}

// Delete removes a single document by id.
func (c *Connector) Delete(ctx context.Context, index, id string) error {
	res, err := c.client.Delete(index, id,
		c.client.Delete.WithContext(ctx),
		c.client.Delete.WithRefresh("true"),
	)
	if err != nil {
		return cserrors.NewInternalError(err.Error())
	}
	defer res.Body.Close()

	if res.StatusCode == http.StatusNotFound {
		return cserrors.NewNotFoundError(fmt.Sprintf("%s/%s does not exist", index, id))
	}

	if res.IsError() {
		return cserrors.NewInternalError(fmt.Sprintf("delete from %s failed: %s", index, res.String()))
	}

	return nil
}

// Exists reports whether any document matches the query.
func (c *Connector) Exists(ctx context.Context, index string, q *Query) (bool, error) {
	body, err := json.Marshal(M{"query": q.Body(0, 0)["query"]})
	if err != nil {
		return false, cserrors.NewInternalError(err.Error())
	}

	res, err := c.client.Count(
		c.client.Count.WithContext(ctx),
		c.client.Count.WithIndex(index),
		c.client.Count.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return false, cserrors.NewInternalError(err.Error())
	}
	defer res.Body.Close()

	if res.IsError() {
		return false, cserrors.NewInternalError(fmt.Sprintf("count on %s failed: %s", index, res.String()))
	}

	response := struct {
		Count int `json:"count"`
	}{}

	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return false, cserrors.NewInternalError(err.Error())
	}

	return response.Count > 0, nil
}

// IDs returns the ids of the documents matching the query, up to limit.
func (c *Connector) IDs(ctx context.Context, index string, q *Query, limit int) ([]string, error) {
	body := q.Body(0, limit)
	body["_source"] = false

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}

	res, err := c.client.Search(
		c.client.Search.WithContext(ctx),
		c.client.Search.WithIndex(index),
		c.client.Search.WithBody(bytes.NewReader(encoded)),
	)
	if err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, cserrors.NewInternalError(fmt.Sprintf("search on %s failed: %s", index, res.String()))
	}

	response := searchResponse{}
	if err := json.NewDecoder(res.Body).Decode(&response); err != nil {
		return nil, cserrors.NewInternalError(err.Error())
	}

	ids := make([]string, 0, len(response.Hits.Hits))
	for _, hit := range response.Hits.Hits {
		ids = append(ids, hit.ID)
	}

	return ids, nil
}

// EnsureIndices creates any index that does not exist yet, with its
// field mappings.
func (c *Connector) EnsureIndices(ctx context.Context, mappings map[string]M) error {
	for index, mapping := range mappings {
		res, err := c.client.Indices.Exists([]string{index},
			c.client.Indices.Exists.WithContext(ctx),
		)
		if err != nil {
			return fmt.Errorf("failed to check index %s: %w", index, err)
		}
		res.Body.Close()

		if res.StatusCode == http.StatusOK {
			continue
		}

		body, err := json.Marshal(M{"mappings": M{"properties": mapping}})
		if err != nil {
			return err
		}

		res, err = c.client.Indices.Create(index,
			c.client.Indices.Create.WithContext(ctx),
			c.client.Indices.Create.WithBody(bytes.NewReader(body)),
		)
		if err != nil {
			return fmt.Errorf("failed to create index %s: %w", index, err)
		}
		defer res.Body.Close()

		if res.IsError() {
			return fmt.Errorf("failed to create index %s: %s", index, res.String())
		}
	}

	return nil
}
