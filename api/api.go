// Copyright 2021, Square, Inc.

// Package api provides controllers for each api endpoint. Controllers are
// "dumb wiring"; there is little to no application logic in this package.
// Controllers look up published workflows and hand start requests to them.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"

	"github.com/labstack/echo"
	"github.com/labstack/echo/middleware"
	"github.com/orcaman/concurrent-map"
	log "github.com/sirupsen/logrus"

	"github.com/square/orkestra/config"
	oerr "github.com/square/orkestra/errors"
	"github.com/square/orkestra/execution"
	"github.com/square/orkestra/render"
	"github.com/square/orkestra/retry"
	"github.com/square/orkestra/util"
)

const (
	API_ROOT = "/api/v1/"

	// Start execution is retried this many times, this long apart.
	START_TRIES = 3
	START_SLEEP = 200 * time.Millisecond
)

var (
	ErrDuplicateWorkflow = errors.New("workflow already registered")
	ErrInvalidWorkflow   = errors.New("workflow found, but type is invalid")
	ErrNoExecutions      = errors.New("execution history is not available")
)

// An ExecutionLister lists started executions of a workflow.
type ExecutionLister interface {
	Executions(workflow string) ([]execution.Execution, error)
}

// WorkflowInfo is returned by GET workflows.
type WorkflowInfo struct {
	Name      string `json:"name"`
	LogicalId string `json:"logicalId"`
	StartAt   string `json:"startAt"`
	States    int    `json:"states"`
}

// API provides controllers for endpoints it registers with a router.
type API struct {
	cfg        config.Server
	workflows  cmap.ConcurrentMap // name => render.Workflow
	executions ExecutionLister    // optional
	// --
	echo *echo.Echo
}

// NewAPI creates a new API struct. It initializes an echo web server within the
// struct, and registers all of the API's routes with it. executions may be nil.
func NewAPI(cfg config.Server, executions ExecutionLister) *API {
	api := &API{
		cfg:        cfg,
		workflows:  cmap.New(),
		executions: executions,
		// --
		echo: echo.New(),
	}

	// //////////////////////////////////////////////////////////////////////
	// Routes
	// //////////////////////////////////////////////////////////////////////
	// List published workflows.
	api.echo.GET(API_ROOT+"workflows", api.listWorkflowsHandler)
	// Get the definition of a workflow.
	api.echo.GET(API_ROOT+"workflows/:name", api.getWorkflowHandler)
	// Start an execution of a workflow.
	api.echo.POST(API_ROOT+"workflows/:name/executions", api.startExecutionHandler)
	// List started executions of a workflow.
	api.echo.GET(API_ROOT+"workflows/:name/executions", api.listExecutionsHandler)

	// //////////////////////////////////////////////////////////////////////
	// Middleware and hooks
	// //////////////////////////////////////////////////////////////////////
	api.echo.Use(middleware.Recover())
	api.echo.Use(middleware.Logger())

	return api
}

// Register makes wf available through the API. Names must be unique.
func (api *API) Register(wf render.Workflow) error {
	if !api.workflows.SetIfAbsent(wf.Name(), wf) {
		return ErrDuplicateWorkflow
	}
	return nil
}

// Run runs the API server until it fails or Stop is called. If the TLS config
// has a cert, key and CA file, clients must present a certificate signed by
// the CA.
func (api *API) Run() error {
	tls := api.cfg.TLS
	if tls.CertFile != "" && tls.KeyFile != "" && tls.CAFile != "" {
		// Mutual TLS: clients must present a certificate signed by the CA.
		tlsConfig, err := util.NewTLSConfig(tls.CAFile, tls.CertFile, tls.KeyFile)
		if err != nil {
			return fmt.Errorf("error loading TLS config: %s", err)
		}
		s := api.echo.TLSServer
		s.Addr = api.cfg.ListenAddress
		s.TLSConfig = tlsConfig
		log.Infof("listening on %s (mutual TLS)", api.cfg.ListenAddress)
		return api.echo.StartServer(s)
	}
	log.Infof("listening on %s", api.cfg.ListenAddress)
	if tls.CertFile != "" && tls.KeyFile != "" {
		return api.echo.StartTLS(api.cfg.ListenAddress, tls.CertFile, tls.KeyFile)
	}
	return api.echo.Start(api.cfg.ListenAddress)
}

// Stop shuts down the API server.
func (api *API) Stop(ctx context.Context) error {
	if api.cfg.TLS.CertFile != "" && api.cfg.TLS.KeyFile != "" {
		return api.echo.TLSServer.Shutdown(ctx)
	}
	return api.echo.Server.Shutdown(ctx)
}

func (api *API) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	api.echo.ServeHTTP(w, r)
}

// ============================== CONTROLLERS ============================== //

// GET <API_ROOT>/workflows
// List published workflows, sorted by name.
func (api *API) listWorkflowsHandler(c echo.Context) error {
	infos := []WorkflowInfo{}
	for name, val := range api.workflows.Items() {
		wf, ok := val.(render.Workflow)
		if !ok {
			return handleError(ErrInvalidWorkflow)
		}
		doc := wf.Definition()
		infos = append(infos, WorkflowInfo{
			Name:      name,
			LogicalId: wf.LogicalID(),
			StartAt:   doc.StartAt,
			States:    len(doc.States),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return c.JSON(http.StatusOK, infos)
}

// GET <API_ROOT>/workflows/{name}
// Get the compiled definition of a workflow.
func (api *API) getWorkflowHandler(c echo.Context) error {
	wf, err := api.workflow(c.Param("name"))
	if err != nil {
		return handleError(err)
	}
	return c.JSON(http.StatusOK, wf.Definition())
}

// POST <API_ROOT>/workflows/{name}/executions
// Start an execution. The request body, if any, is the JSON execution input.
func (api *API) startExecutionHandler(c echo.Context) error {
	wf, err := api.workflow(c.Param("name"))
	if err != nil {
		return handleError(err)
	}

	var input interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&input); err != nil && err != io.EOF {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid execution input: "+err.Error())
	}

	ctx := c.Request().Context()
	var e execution.Execution
	err = retry.Do(ctx, START_TRIES, START_SLEEP,
		func() error {
			var err error
			e, err = wf.StartExecution(ctx, input)
			return err
		},
		func(err error) {
			log.WithField("workflow", wf.Name()).Warnf("error starting execution, retrying: %s", err)
		},
	)
	if err != nil {
		return handleError(err)
	}

	log.WithFields(log.Fields{
		"workflow":  wf.Name(),
		"execution": e.ID,
	}).Info("started execution")
	c.Response().Header().Set("Location", API_ROOT+"workflows/"+wf.Name()+"/executions/"+e.ID)
	return c.JSON(http.StatusCreated, e)
}

// GET <API_ROOT>/workflows/{name}/executions
// List started executions of a workflow, oldest first.
func (api *API) listExecutionsHandler(c echo.Context) error {
	wf, err := api.workflow(c.Param("name"))
	if err != nil {
		return handleError(err)
	}
	if api.executions == nil {
		return handleError(ErrNoExecutions)
	}
	all, err := api.executions.Executions(wf.Name())
	if err != nil {
		return handleError(err)
	}
	return c.JSON(http.StatusOK, all)
}

// ------------------------------------------------------------------------- //

func (api *API) workflow(name string) (render.Workflow, error) {
	val, ok := api.workflows.Get(name)
	if !ok {
		return nil, oerr.WorkflowNotFound{Name: name}
	}
	wf, ok := val.(render.Workflow)
	if !ok {
		return nil, ErrInvalidWorkflow
	}
	return wf, nil
}

func handleError(err error) *echo.HTTPError {
	switch err.(type) {
	case oerr.WorkflowNotFound:
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	default:
		switch err {
		case ErrNoExecutions:
			return echo.NewHTTPError(http.StatusNotImplemented, err.Error())
		default:
			return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
		}
	}
}
