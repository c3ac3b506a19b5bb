package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humamux"
	"github.com/gorilla/mux"
	"golang.org/x/net/netutil"

	"github.com/ams-project/ams/auth"
	"github.com/ams-project/ams/config"
	"github.com/ams-project/ams/journal"
	"github.com/ams-project/ams/lifecycle"
	"github.com/ams-project/ams/metadata"
	"github.com/ams-project/ams/reconcile"
	"github.com/ams-project/ams/schemas"
	"github.com/ams-project/ams/storage"
	"github.com/ams-project/ams/store"
	"github.com/ams-project/ams/submission"
	"github.com/ams-project/ams/validation"
)

// Version numbers
var majorVersion = 0
var minorVersion = 1
var patchVersion = 0

// Version string
var version = fmt.Sprintf("%d.%d.%d", majorVersion, minorVersion, patchVersion)

// This type implements the MetadataService interface, tracking studies,
// submission entities, and analyses behind a REST API.
type amsService struct {
	// name of the service
	Name string
	// service version identifier
	Version string
	// time which the service was started
	StartTime time.Time
	// port on which the service currently runs
	Port int
	// router for REST endpoints
	Router *mux.Router
	// API wrapper
	API huma.API
	// HTTP server.
	Server *http.Server

	// the metadata store and the submission machinery on top of it
	Store      *store.Store
	Submission *submission.Service

	// token authenticator (nil when authentication is disabled)
	Authenticator *auth.Authenticator
}

// authorizes a client request, returning the submitter's user record and an
// error describing any issue encountered
func (service *amsService) authorize(authorizationHeader string) (auth.User, error) {
	if service.Authenticator == nil { // authentication disabled
		return auth.User{}, nil
	}
	if !strings.Contains(authorizationHeader, "Bearer") {
		return auth.User{}, huma.Error401Unauthorized("Invalid authorization header")
	}
	accessToken := strings.TrimSpace(authorizationHeader[len("Bearer "):])
	user, err := service.Authenticator.GetUser(accessToken)
	if err != nil {
		return auth.User{}, huma.Error401Unauthorized(err.Error())
	}
	return user, nil
}

// Maps the typed errors produced by the lower layers to HTTP status codes so
// handlers don't each reinvent the mapping.
func apiError(err error) error {
	var statusErr huma.StatusError
	if errors.As(err, &statusErr) {
		return err // already mapped
	}

	var notFound *submission.NotFoundError
	var unknownType *schemas.UnknownAnalysisTypeError
	var unknownStudy *reconcile.UnknownStudyError
	if errors.As(err, &notFound) || errors.As(err, &unknownType) ||
		errors.As(err, &unknownStudy) {
		return huma.Error404NotFound(err.Error())
	}

	var schemaConflict *schemas.SchemaConflictError
	var studyExists *submission.StudyExistsError
	var analysisConflict *reconcile.AnalysisConflictError
	var keyCollision *reconcile.BusinessKeyCollisionError
	var illegalTransition *lifecycle.IllegalStateTransitionError
	var storeConflict *store.ConflictError
	var missingChecksums *submission.MissingChecksumsError
	var missingObjects *submission.MissingObjectsError
	if errors.As(err, &schemaConflict) || errors.As(err, &studyExists) ||
		errors.As(err, &analysisConflict) || errors.As(err, &keyCollision) ||
		errors.As(err, &illegalTransition) || errors.As(err, &storeConflict) ||
		errors.As(err, &missingChecksums) || errors.As(err, &missingObjects) {
		return huma.Error409Conflict(err.Error())
	}

	var invalidSchema *schemas.InvalidSchemaError
	var composition *schemas.SchemaCompositionError
	var malformed *validation.MalformedPayloadError
	var mismatch *submission.StudyMismatchError
	if errors.As(err, &invalidSchema) || errors.As(err, &composition) ||
		errors.As(err, &malformed) || errors.As(err, &mismatch) {
		return huma.Error400BadRequest(err.Error())
	}

	return huma.Error500InternalServerError(err.Error())
}

type ServiceInfoOutput struct {
	Body ServiceInfoResponse `doc:"information about the service itself"`
}

// handler method for root (no authorization needed for this one)
func (service *amsService) getRoot(ctx context.Context,
	input *struct{}) (*ServiceInfoOutput, error) {

	slog.Info("Querying root endpoint...")
	return &ServiceInfoOutput{
		Body: ServiceInfoResponse{
			Name:          service.Name,
			Version:       service.Version,
			Uptime:        int(service.uptime()),
			Documentation: "/docs",
		},
	}, nil
}

//---------
// Schemas
//---------

type RegisterSchemaOutput struct {
	Body   RegisterSchemaResponse `doc:"the name and assigned version of the registered schema"`
	Status int
}

// handler method for registering a new analysis type schema
func (service *amsService) registerSchema(ctx context.Context,
	input *struct {
		Authorization string                `header:"authorization" doc:"Authorization header with bearer token"`
		Body          RegisterSchemaRequest `doc:"the analysis type name and its JSON Schema document"`
		ContentType   string                `header:"Content-Type" doc:"Content-Type header (must be application/json)"`
	}) (*RegisterSchemaOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	slog.Info(fmt.Sprintf("Registering analysis type schema %s...", input.Body.Name))
	schemaVersion, err := service.Submission.RegisterSchema(input.Body.Name, input.Body.Schema)
	if err != nil {
		return nil, apiError(err)
	}
	return &RegisterSchemaOutput{
		Body: RegisterSchemaResponse{
			Name:    input.Body.Name,
			Version: schemaVersion,
		},
		Status: http.StatusCreated,
	}, nil
}

type SchemasOutput struct {
	Body []SchemaResponse `doc:"a list of registered analysis type schemas"`
}

// handler method for listing registered analysis type schemas
func (service *amsService) listSchemas(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		Filter        string `query:"filter" doc:"(Optional) a substring to match against type names"`
		Offset        int    `query:"offset" example:"0" doc:"Results begin at the given offset"`
		Limit         int    `query:"limit" example:"50" doc:"Limits the number of results returned"`
	}) (*SchemasOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	registered, err := service.Submission.Registry().List(input.Filter, input.Offset, input.Limit)
	if err != nil {
		return nil, apiError(err)
	}
	output := &SchemasOutput{
		Body: make([]SchemaResponse, len(registered)),
	}
	for i, schema := range registered {
		output.Body[i] = SchemaResponse{
			Name:      schema.Name,
			Version:   schema.Version,
			Schema:    schema.Document,
			CreatedAt: schema.CreatedAt,
		}
	}
	return output, nil
}

type SchemaOutput struct {
	Body SchemaResponse `doc:"the requested analysis type schema"`
}

// handler method for fetching one analysis type schema, optionally resolved
// against the payload envelope schema
func (service *amsService) getSchema(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		Name          string `path:"name" example:"sequencingRead" doc:"the analysis type name"`
		Version       int    `query:"version" doc:"(Optional) a specific version (latest if omitted)"`
		Resolved      bool   `query:"resolved" doc:"if true, return the composed schema payloads are validated against"`
	}) (*SchemaOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	if input.Resolved {
		resolved, err := service.Submission.Registry().Resolve(input.Name, input.Version)
		if err != nil {
			return nil, apiError(err)
		}
		document, err := json.Marshal(resolved.Document)
		if err != nil {
			return nil, apiError(err)
		}
		return &SchemaOutput{
			Body: SchemaResponse{
				Name:    resolved.TypeName,
				Version: resolved.TypeVersion,
				Schema:  document,
			},
		}, nil
	}

	schema, err := service.Submission.Registry().Get(input.Name, input.Version)
	if err != nil {
		return nil, apiError(err)
	}
	return &SchemaOutput{
		Body: SchemaResponse{
			Name:      schema.Name,
			Version:   schema.Version,
			Schema:    schema.Document,
			CreatedAt: schema.CreatedAt,
		},
	}, nil
}

//---------
// Studies
//---------

type StudyOutput struct {
	Body   StudyResponse `doc:"the requested study"`
	Status int
}

// handler method for creating a study
func (service *amsService) createStudy(ctx context.Context,
	input *struct {
		Authorization string         `header:"authorization" doc:"Authorization header with bearer token"`
		Body          metadata.Study `doc:"the study to create"`
		ContentType   string         `header:"Content-Type" doc:"Content-Type header (must be application/json)"`
	}) (*StudyOutput, error) {

	user, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}
	if !user.MaySubmitTo(input.Body.StudyId) {
		return nil, huma.Error403Forbidden("You may not write to this study.")
	}

	slog.Info(fmt.Sprintf("Creating study %s...", input.Body.StudyId))
	if input.Body.StudyId == "" {
		return nil, huma.Error400BadRequest("The study has no studyId field.")
	}
	if err := service.Submission.CreateStudy(ctx, input.Body); err != nil {
		return nil, apiError(err)
	}
	return &StudyOutput{
		Body:   StudyResponse{Study: input.Body},
		Status: http.StatusCreated,
	}, nil
}

// handler method for fetching a study
func (service *amsService) getStudy(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId       string `path:"studyId" example:"ABC123" doc:"the study's identifier"`
	}) (*StudyOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	study, err := service.Submission.GetStudy(ctx, input.StudyId)
	if err != nil {
		return nil, apiError(err)
	}
	return &StudyOutput{Body: StudyResponse{Study: study}}, nil
}

//-------------
// Submissions
//-------------

type SubmitOutput struct {
	Body   SubmitResponse `doc:"the outcome of the submission: an upload record and either an analysis id or a list of violations"`
	Status int
}

// handler method for submitting a payload to a study
func (service *amsService) submit(ctx context.Context,
	input *struct {
		Authorization string          `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId       string          `path:"studyId" example:"ABC123" doc:"the study's identifier"`
		Body          json.RawMessage `doc:"the submission payload" contentType:"application/json"`
		ContentType   string          `header:"Content-Type" doc:"Content-Type header (must be application/json)"`
	}) (*SubmitOutput, error) {

	user, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}
	if !user.MaySubmitTo(input.StudyId) {
		return nil, huma.Error403Forbidden("You may not write to this study.")
	}

	slog.Info(fmt.Sprintf("Processing a submission to study %s...", input.StudyId))
	result, err := service.Submission.Submit(ctx, input.StudyId, input.Body)
	if err != nil {
		return nil, apiError(err)
	}

	status := http.StatusCreated
	if len(result.Violations) > 0 {
		status = http.StatusUnprocessableEntity
	}
	return &SubmitOutput{
		Body: SubmitResponse{
			SubmitResult: result,
			Errors:       result.Violations,
		},
		Status: status,
	}, nil
}

type UploadOutput struct {
	Body metadata.Upload `doc:"the requested upload record"`
}

// handler method for fetching an upload's status
func (service *amsService) getUpload(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId       string `path:"studyId" example:"ABC123" doc:"the study's identifier"`
		UploadId      string `path:"uploadId" doc:"the upload's identifier"`
	}) (*UploadOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	upload, err := service.Submission.GetUpload(ctx, input.StudyId, input.UploadId)
	if err != nil {
		return nil, apiError(err)
	}
	return &UploadOutput{Body: upload}, nil
}

//----------
// Analyses
//----------

type AnalysisOutput struct {
	Body submission.AnalysisDetail `doc:"the requested analysis with its samples and files"`
}

// handler method for fetching an analysis
func (service *amsService) getAnalysis(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId       string `path:"studyId" example:"ABC123" doc:"the study's identifier"`
		AnalysisId    string `path:"analysisId" doc:"the analysis's identifier"`
	}) (*AnalysisOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	detail, err := service.Submission.GetAnalysis(ctx, input.StudyId, input.AnalysisId)
	if err != nil {
		return nil, apiError(err)
	}
	return &AnalysisOutput{Body: detail}, nil
}

type TransitionOutput struct {
	Body struct {
		AnalysisId string `json:"analysisId"`
		State      string `json:"analysisState"`
	} `doc:"the analysis's identifier and its state after the transition"`
}

func transitionOutput(analysisId, state string) *TransitionOutput {
	var output TransitionOutput
	output.Body.AnalysisId = analysisId
	output.Body.State = state
	return &output
}

// handler method for publishing an analysis
func (service *amsService) publishAnalysis(ctx context.Context,
	input *struct {
		Authorization           string `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId                 string `path:"studyId" example:"ABC123" doc:"the study's identifier"`
		AnalysisId              string `path:"analysisId" doc:"the analysis's identifier"`
		IgnoreUndefinedChecksum bool   `query:"ignoreUndefinedChecksum" doc:"if true, allow publication of files without MD5 checksums"`
	}) (*TransitionOutput, error) {

	user, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}
	if !user.MaySubmitTo(input.StudyId) {
		return nil, huma.Error403Forbidden("You may not write to this study.")
	}

	slog.Info(fmt.Sprintf("Publishing analysis %s...", input.AnalysisId))
	err = service.Submission.Publish(ctx, input.StudyId, input.AnalysisId,
		input.IgnoreUndefinedChecksum)
	if err != nil {
		return nil, apiError(err)
	}
	return transitionOutput(input.AnalysisId, metadata.AnalysisPublished), nil
}

// handler method for unpublishing an analysis
func (service *amsService) unpublishAnalysis(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId       string `path:"studyId" example:"ABC123" doc:"the study's identifier"`
		AnalysisId    string `path:"analysisId" doc:"the analysis's identifier"`
	}) (*TransitionOutput, error) {

	user, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}
	if !user.MaySubmitTo(input.StudyId) {
		return nil, huma.Error403Forbidden("You may not write to this study.")
	}

	slog.Info(fmt.Sprintf("Unpublishing analysis %s...", input.AnalysisId))
	err = service.Submission.Unpublish(ctx, input.StudyId, input.AnalysisId)
	if err != nil {
		return nil, apiError(err)
	}
	return transitionOutput(input.AnalysisId, metadata.AnalysisUnpublished), nil
}

// handler method for suppressing an analysis
func (service *amsService) suppressAnalysis(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId       string `path:"studyId" example:"ABC123" doc:"the study's identifier"`
		AnalysisId    string `path:"analysisId" doc:"the analysis's identifier"`
	}) (*TransitionOutput, error) {

	user, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}
	if !user.IsAdmin && service.Authenticator != nil {
		return nil, huma.Error403Forbidden("Only administrators may suppress analyses.")
	}

	slog.Info(fmt.Sprintf("Suppressing analysis %s...", input.AnalysisId))
	err = service.Submission.Suppress(ctx, input.StudyId, input.AnalysisId)
	if err != nil {
		return nil, apiError(err)
	}
	return transitionOutput(input.AnalysisId, metadata.AnalysisSuppressed), nil
}

type ManifestOutput struct {
	Body json.RawMessage `doc:"a Frictionless data package descriptor listing the analysis's files"`
}

// handler method for fetching a published analysis's download manifest
func (service *amsService) getManifest(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		StudyId       string `path:"studyId" example:"ABC123" doc:"the study's identifier"`
		AnalysisId    string `path:"analysisId" doc:"the analysis's identifier"`
	}) (*ManifestOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	descriptor, err := service.Submission.Manifest(ctx, input.StudyId, input.AnalysisId)
	if err != nil {
		return nil, apiError(err)
	}
	return &ManifestOutput{Body: descriptor}, nil
}

//---------
// Journal
//---------

type JournalOutput struct {
	Body JournalResponse `doc:"submission journal events within the requested time range"`
}

// handler method for querying the submission journal
func (service *amsService) getJournal(ctx context.Context,
	input *struct {
		Authorization string `header:"authorization" doc:"Authorization header with bearer token"`
		Start         string `query:"start" example:"2024-01-01T00:00:00Z" doc:"the beginning of the time period of interest (RFC 3339)"`
		Stop          string `query:"stop" example:"2024-12-31T23:59:59Z" doc:"the end of the time period of interest (RFC 3339)"`
	}) (*JournalOutput, error) {

	_, err := service.authorize(input.Authorization)
	if err != nil {
		return nil, err
	}

	start, err := time.Parse(time.RFC3339, input.Start)
	if err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("Invalid start time: %s", input.Start))
	}
	stop, err := time.Parse(time.RFC3339, input.Stop)
	if err != nil {
		return nil, huma.Error400BadRequest(fmt.Sprintf("Invalid stop time: %s", input.Stop))
	}

	events, err := journal.Events(start, stop)
	if err != nil {
		return nil, apiError(err)
	}
	return &JournalOutput{Body: JournalResponse{Events: events}}, nil
}

// returns the uptime for the service in seconds
func (service *amsService) uptime() float64 {
	return time.Since(service.StartTime).Seconds()
}

// Registers the analysis type schemas found in the configured schema
// directory (one JSON document per file, named after its type). A schema
// identical to the latest registered version is skipped quietly, so restarts
// don't mint new versions.
func preloadSchemas(svc *submission.Service) error {
	if config.Schemas.Directory == "" {
		return nil
	}
	entries, err := os.ReadDir(config.Schemas.Directory)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		document, err := os.ReadFile(filepath.Join(config.Schemas.Directory, entry.Name()))
		if err != nil {
			return err
		}
		name := strings.TrimSuffix(entry.Name(), ".json")
		schemaVersion, err := svc.Registry().Register(name, document)
		if err != nil {
			var conflict *schemas.SchemaConflictError
			if errors.As(err, &conflict) {
				continue // already registered, nothing new
			}
			return err
		}
		slog.Info(fmt.Sprintf("Registered analysis type schema %s (version %d)",
			name, schemaVersion))
	}
	return nil
}

// constructs an analysis metadata service instance from our configuration
func NewAMSService() (MetadataService, error) {

	service := new(amsService)
	service.Name = "AMS"
	service.Version = version
	service.Port = -1

	// open the metadata store and stand up the submission machinery
	metadataStore, err := store.Open(filepath.Join(config.Service.DataDirectory,
		config.Database.Path))
	if err != nil {
		return nil, err
	}
	provider, err := storage.NewProvider()
	if err != nil {
		metadataStore.Close()
		return nil, err
	}
	service.Store = metadataStore
	service.Submission = submission.NewService(metadataStore, provider)

	if config.Auth.Enabled {
		service.Authenticator, err = auth.NewAuthenticator()
		if err != nil {
			metadataStore.Close()
			return nil, err
		}
	}

	if err := preloadSchemas(service.Submission); err != nil {
		metadataStore.Close()
		return nil, err
	}

	// set up routing
	service.Router = mux.NewRouter()
	if HaveDocEndpoints {
		AddDocEndpoints(service.Router)
	}
	api := humamux.New(service.Router, huma.DefaultConfig(service.Name, service.Version))
	huma.Get(api, "/", service.getRoot)

	// API v1
	huma.Post(api, "/api/v1/schemas", service.registerSchema)
	huma.Get(api, "/api/v1/schemas", service.listSchemas)
	huma.Get(api, "/api/v1/schemas/{name}", service.getSchema)
	huma.Post(api, "/api/v1/studies", service.createStudy)
	huma.Get(api, "/api/v1/studies/{studyId}", service.getStudy)
	huma.Post(api, "/api/v1/studies/{studyId}/submit", service.submit)
	huma.Get(api, "/api/v1/studies/{studyId}/uploads/{uploadId}", service.getUpload)
	huma.Get(api, "/api/v1/studies/{studyId}/analyses/{analysisId}", service.getAnalysis)
	huma.Put(api, "/api/v1/studies/{studyId}/analyses/{analysisId}/publish", service.publishAnalysis)
	huma.Put(api, "/api/v1/studies/{studyId}/analyses/{analysisId}/unpublish", service.unpublishAnalysis)
	huma.Put(api, "/api/v1/studies/{studyId}/analyses/{analysisId}/suppress", service.suppressAnalysis)
	huma.Get(api, "/api/v1/studies/{studyId}/analyses/{analysisId}/manifest", service.getManifest)
	huma.Get(api, "/api/v1/journal", service.getJournal)

	return service, nil
}

// starts the analysis metadata service
func (service *amsService) Start(port int) error {
	slog.Info(fmt.Sprintf("Starting %s service on port %d...", service.Name, port))
	slog.Info(fmt.Sprintf("(Accepting up to %d connections)", config.Service.MaxConnections))

	service.StartTime = time.Now()

	// create a listener that limits the number of incoming connections
	service.Port = port
	listener, err := net.Listen("tcp", ":"+strconv.Itoa(port))
	if err != nil {
		return err
	}
	defer listener.Close()
	listener = netutil.LimitListener(listener, config.Service.MaxConnections)

	// start the server
	service.Server = &http.Server{
		Handler: service.Router}
	err = service.Server.Serve(listener)

	// we don't report the server closing as an error
	if err != http.ErrServerClosed {
		return err
	}
	return nil
}

// gracefully shuts down the service without interrupting active connections
func (service *amsService) Shutdown(ctx context.Context) error {
	var err error
	if service.Server != nil {
		err = service.Server.Shutdown(ctx)
	}
	if service.Store != nil {
		service.Store.Close()
	}
	return err
}

// closes down the service abruptly, freeing all resources
func (service *amsService) Close() {
	if service.Server != nil {
		service.Server.Close()
	}
	if service.Store != nil {
		service.Store.Close()
	}
}
