// Copyright (C) 2024 Coredrive, Inc.
// See LICENSE for copying information.

package coreerrs_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"coredrive.io/core/pkg/coreerrs"
)

func TestFromCodeMapsKnownCodes(t *testing.T) {
	cases := []struct {
		code string
		want coreerrs.Kind
	}{
		{coreerrs.CodeAgain, coreerrs.KindRateLimit},
		{coreerrs.CodeRateLimit, coreerrs.KindRateLimit},
		{coreerrs.CodeSessionID, coreerrs.KindAuthInvalid},
		{coreerrs.CodeBlocked, coreerrs.KindAuthInvalid},
		{coreerrs.CodeSSL, coreerrs.KindAuthInvalid},
		{coreerrs.CodeOverQuota, coreerrs.KindQuota},
		{coreerrs.CodePaywall, coreerrs.KindQuota},
		{coreerrs.CodeTooMany, coreerrs.KindProtocolViolation},
		{"EUNKNOWNCODE", coreerrs.KindUnknown},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, coreerrs.FromCode(c.code), c.code)
	}
}

func TestKindRetryableOnlyForTransientKinds(t *testing.T) {
	assert.True(t, coreerrs.KindNetworkTransient.Retryable())
	assert.True(t, coreerrs.KindRateLimit.Retryable())
	assert.True(t, coreerrs.KindLocalFSTransient.Retryable())

	assert.False(t, coreerrs.KindAuthInvalid.Retryable())
	assert.False(t, coreerrs.KindQuota.Retryable())
	assert.False(t, coreerrs.KindCrypto.Retryable())
	assert.False(t, coreerrs.KindLocalFSPermanent.Retryable())
	assert.False(t, coreerrs.KindProtocolViolation.Retryable())
	assert.False(t, coreerrs.KindUnknown.Retryable())
}

func TestErrorUnwrapsWrappedCause(t *testing.T) {
	cause := errors.New("boom")
	err := coreerrs.New(coreerrs.KindCrypto, "", cause)
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "crypto")
}

func TestErrorFormatsWithoutWrappedCause(t *testing.T) {
	err := coreerrs.New(coreerrs.KindAuthInvalid, coreerrs.CodeSessionID, nil)
	assert.Contains(t, err.Error(), "auth-invalid")
	assert.Contains(t, err.Error(), coreerrs.CodeSessionID)
}
