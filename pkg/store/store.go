// Package store persists the book catalog in Postgres.
package store

import "cherrybook/pkg/catalog"

var _ catalog.Catalog = (*GormStore)(nil)
