package app_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/briskprint/printservice/internal/app"
	"github.com/briskprint/printservice/internal/config"
	"github.com/stretchr/testify/assert"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error { return p.err }

func TestBuildReadinessChecks_DBCheck(t *testing.T) {
	t.Parallel()
	dbCheck, _ := app.BuildReadinessChecks(config.Config{}, fakePinger{})
	assert.NoError(t, dbCheck(context.Background()))

	dbCheck, _ = app.BuildReadinessChecks(config.Config{}, fakePinger{err: errors.New("down")})
	assert.Error(t, dbCheck(context.Background()))

	dbCheck, _ = app.BuildReadinessChecks(config.Config{}, nil)
	assert.Error(t, dbCheck(context.Background()))
}

func TestBuildReadinessChecks_PublicURLCheck_NotConfigured(t *testing.T) {
	t.Parallel()
	_, publicURLCheck := app.BuildReadinessChecks(config.Config{}, fakePinger{})
	assert.Error(t, publicURLCheck(context.Background()))
}

func TestBuildReadinessChecks_PublicURLCheck_Reachable(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	_, publicURLCheck := app.BuildReadinessChecks(config.Config{PublicDomain: srv.URL}, fakePinger{})
	assert.NoError(t, publicURLCheck(context.Background()))
}
