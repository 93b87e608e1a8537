// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package account_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"coredrive.io/core/pkg/account"
)

func TestPCRBookPendingExcludesDeleted(t *testing.T) {
	b := account.NewPCRBook()
	b.Put(&account.PendingContactRequest{ID: "a", Originator: "x@example.com", Target: "y@example.com"})
	b.Put(&account.PendingContactRequest{ID: "b", Originator: "x@example.com", Target: "z@example.com", Deleted: time.Unix(1, 0)})

	pending := b.Pending()
	require.Len(t, pending, 1)
	assert.Equal(t, "a", pending[0].ID)
}

func TestPCRIsDeleted(t *testing.T) {
	r := &account.PendingContactRequest{ID: "a"}
	assert.False(t, r.IsDeleted())
	r.Deleted = time.Unix(5, 0)
	assert.True(t, r.IsDeleted())
}

func TestPCRBookGetAndRemove(t *testing.T) {
	b := account.NewPCRBook()
	b.Put(&account.PendingContactRequest{ID: "a"})
	require.NotNil(t, b.Get("a"))
	b.Remove("a")
	assert.Nil(t, b.Get("a"))
}
