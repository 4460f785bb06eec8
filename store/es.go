// Package store holds the data sources behind the lineage and question services.
package store

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/pkg/errors"

	"github.com/byBit-ovo/coral_lineage/lineage"
)

const (
	DefaultCodeIndex   = "code_records"
	DefaultResultIndex = "lineage_results"
)

type ElasticConfig struct {
	Addresses []string
	Username  string
	Password  string
	// Transport replaces the default pooled transport, mostly for tests.
	Transport http.RoundTripper
}

// NewElasticClient builds a client and checks the cluster answers.
func NewElasticClient(ctx context.Context, cfg ElasticConfig) (*elasticsearch.Client, error) {
	transport := cfg.Transport
	if transport == nil {
		transport = &http.Transport{
			MaxIdleConnsPerHost:   10,
			ResponseHeaderTimeout: 5 * time.Second,
			DialContext:           (&net.Dialer{Timeout: time.Second}).DialContext,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
		}
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		Transport: transport,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create elasticsearch client")
	}
	res, err := client.Info(client.Info.WithContext(ctx))
	if err != nil {
		return nil, errors.Wrap(err, "elasticsearch info")
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, parseEsError(res)
	}
	return client, nil
}

// ElasticStore reads code records and stores lineage results, one index each.
// Code record documents use the code id as _id and look like
// {"code_id": "...", "code": "..."}.
type ElasticStore struct {
	client      *elasticsearch.Client
	codeIndex   string
	resultIndex string
}

func NewElasticStore(client *elasticsearch.Client, codeIndex, resultIndex string) *ElasticStore {
	if codeIndex == "" {
		codeIndex = DefaultCodeIndex
	}
	if resultIndex == "" {
		resultIndex = DefaultResultIndex
	}
	return &ElasticStore{client: client, codeIndex: codeIndex, resultIndex: resultIndex}
}

func (es *ElasticStore) GetCode(ctx context.Context, id string) (*lineage.CodeRecord, error) {
	var record lineage.CodeRecord
	if err := es.getSource(ctx, es.codeIndex, id, &record); err != nil {
		return nil, err
	}
	if record.ID == "" {
		record.ID = id
	}
	if strings.TrimSpace(record.Code) == "" {
		return nil, errors.Wrapf(lineage.ErrNotFound, "code record %s has no code", id)
	}
	return &record, nil
}

func (es *ElasticStore) SaveResult(ctx context.Context, result *lineage.Result) error {
	body, err := json.Marshal(result)
	if err != nil {
		return errors.Wrap(err, "encode lineage result")
	}
	res, err := es.client.Index(
		es.resultIndex,
		bytes.NewReader(body),
		es.client.Index.WithContext(ctx),
		es.client.Index.WithDocumentID(result.ID),
		es.client.Index.WithRefresh("true"),
	)
	if err != nil {
		return errors.Wrap(err, "index lineage result")
	}
	defer res.Body.Close()
	if res.IsError() {
		return parseEsError(res)
	}
	return nil
}

func (es *ElasticStore) GetResult(ctx context.Context, id string) (*lineage.Result, error) {
	var result lineage.Result
	if err := es.getSource(ctx, es.resultIndex, id, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (es *ElasticStore) getSource(ctx context.Context, index, id string, dst interface{}) error {
	res, err := es.client.Get(index, id, es.client.Get.WithContext(ctx))
	if err != nil {
		return errors.Wrapf(err, "get %s/%s", index, id)
	}
	defer res.Body.Close()
	if res.StatusCode == http.StatusNotFound {
		return errors.Wrapf(lineage.ErrNotFound, "%s/%s", index, id)
	}
	if res.IsError() {
		return parseEsError(res)
	}
	var doc struct {
		Found  bool            `json:"found"`
		Source json.RawMessage `json:"_source"`
	}
	if err := json.NewDecoder(res.Body).Decode(&doc); err != nil {
		return errors.Wrapf(err, "decode %s/%s", index, id)
	}
	if !doc.Found || len(doc.Source) == 0 {
		return errors.Wrapf(lineage.ErrNotFound, "%s/%s", index, id)
	}
	return errors.Wrapf(json.Unmarshal(doc.Source, dst), "decode %s/%s source", index, id)
}

func parseEsError(res *esapi.Response) error {
	body, _ := io.ReadAll(res.Body)
	msg := strings.TrimSpace(string(body))
	if msg == "" {
		msg = "empty response body"
	}
	return errors.Errorf("es error: status=%s body=%s", res.Status(), msg)
}
