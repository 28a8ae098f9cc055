// Package main hosts the storescan command line: single scans, batch
// scans over a URL list, and the HTTP service.
//
// Usage:
//
//	storescan scan example.com --resume
//	storescan batch --file urls.txt --concurrency 3
//	storescan serve --config storescan.yaml
//
// Configuration comes from an optional YAML file and STORESCAN_* environment
// variables; see internal/config for every key.
package main
