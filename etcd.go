package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/pingcap/log"
	"github.com/pkg/errors"
	clientv3 "go.etcd.io/etcd/client/v3"
	"go.uber.org/zap"

	"github.com/byBit-ovo/coral_lineage/config"
)

const (
	defaultEtcdTTLSeconds = 10
)

// RegisterHTTPToEtcd publishes httpAddr under /<service>/<instance> with a
// kept-alive lease. It is a no-op when etcd is not configured.
func RegisterHTTPToEtcd(ctx context.Context, cfg config.EtcdConfig, httpAddr string) (func() error, error) {
	if len(cfg.Endpoints) == 0 || cfg.ServiceName == "" || httpAddr == "" {
		return func() error { return nil }, nil
	}

	value, err := advertiseAddr(httpAddr)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("/%s/%s", cfg.ServiceName, instanceID(value))

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   cfg.Endpoints,
		DialTimeout: 5 * time.Second,
	})
	if err != nil {
		return nil, errors.Wrap(err, "connect etcd")
	}

	lease, err := client.Grant(ctx, defaultEtcdTTLSeconds)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "grant etcd lease")
	}
	if _, err = client.Put(ctx, key, value, clientv3.WithLease(lease.ID)); err != nil {
		_ = client.Close()
		return nil, errors.Wrapf(err, "put %s", key)
	}
	// The keep-alive stream must outlive ctx; it ends when the client closes.
	keepAliveCh, err := client.KeepAlive(context.Background(), lease.ID)
	if err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "keep etcd lease alive")
	}
	go func() {
		for range keepAliveCh {
		}
	}()
	log.Info("registered in etcd", zap.String("key", key), zap.String("addr", value))

	return func() error {
		revokeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = client.Revoke(revokeCtx, lease.ID)
		return client.Close()
	}, nil
}

// advertiseAddr fills in the hostname for listen addresses like ":8080".
func advertiseAddr(addr string) (string, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return "", errors.Wrapf(err, "http addr %q", addr)
	}
	if host == "" || host == "0.0.0.0" || host == "::" {
		if host, err = os.Hostname(); err != nil {
			return "", err
		}
	}
	return net.JoinHostPort(host, port), nil
}

var instanceIDReplacer = strings.NewReplacer(":", "-", "[", "", "]", "")

// instanceID turns an advertised host:port into a key segment, so two
// replicas on one host stay apart by port.
func instanceID(advertised string) string {
	return instanceIDReplacer.Replace(advertised)
}
