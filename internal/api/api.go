package api

// Route table and parameter binding for the sync dashboard API. The layout
// follows what oapi-codegen emits for chi servers so handlers only ever see
// bound, typed parameters.

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/oapi-codegen/runtime"
)

// GetLogParams defines parameters for GetLog.
type GetLogParams struct {
	// Since is the lowest seqno to return. Defaults to the start of the log.
	Since *uint64 `form:"since,omitempty" json:"since,omitempty"`
}

// PutObjectFieldJSONBody is the request body of PutObjectField.
type PutObjectFieldJSONBody struct {
	Value string `json:"value"`
}

// ServerInterface represents all server handlers.
type ServerInterface interface {
	// Snapshot of backend and client
	// (GET /v1/state)
	GetState(w http.ResponseWriter, r *http.Request)
	// Backend sequence log
	// (GET /v1/log)
	GetLog(w http.ResponseWriter, r *http.Request, params GetLogParams)
	// Write one field on the backend
	// (PUT /v1/objects/{namespace}/{key})
	PutObjectField(w http.ResponseWriter, r *http.Request, namespace string, key string)
	// Raw "namespace/key=value" input
	// (POST /v1/entries)
	SubmitEntry(w http.ResponseWriter, r *http.Request)
	// jump, pull, fetch or apply
	// (POST /v1/commands/{command})
	RunCommand(w http.ResponseWriter, r *http.Request, command string)
	// Websocket stream of state snapshots
	// (GET /v1/watch)
	WatchState(w http.ResponseWriter, r *http.Request)
}

// Unimplemented answers every operation with 501.
type Unimplemented struct{}

func (Unimplemented) GetState(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) GetLog(w http.ResponseWriter, r *http.Request, params GetLogParams) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) PutObjectField(w http.ResponseWriter, r *http.Request, namespace string, key string) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) RunCommand(w http.ResponseWriter, r *http.Request, command string) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (Unimplemented) WatchState(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

type MiddlewareFunc func(http.Handler) http.Handler

// ServerInterfaceWrapper converts requests into typed handler calls.
type ServerInterfaceWrapper struct {
	Handler            ServerInterface
	HandlerMiddlewares []MiddlewareFunc
	ErrorHandlerFunc   func(w http.ResponseWriter, r *http.Request, err error)
}

func (siw *ServerInterfaceWrapper) serve(w http.ResponseWriter, r *http.Request, h http.HandlerFunc) {
	var handler http.Handler = h
	for _, middleware := range siw.HandlerMiddlewares {
		handler = middleware(handler)
	}
	handler.ServeHTTP(w, r)
}

func (siw *ServerInterfaceWrapper) GetState(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.GetState)
}

func (siw *ServerInterfaceWrapper) GetLog(w http.ResponseWriter, r *http.Request) {
	var params GetLogParams

	err := runtime.BindQueryParameter("form", true, false, "since", r.URL.Query(), &params.Since)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "since", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.GetLog(w, r, params)
	})
}

func (siw *ServerInterfaceWrapper) PutObjectField(w http.ResponseWriter, r *http.Request) {
	var namespace, key string

	err := runtime.BindStyledParameterWithLocation("simple", false, "namespace", runtime.ParamLocationPath, chi.URLParam(r, "namespace"), &namespace)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "namespace", Err: err})
		return
	}
	err = runtime.BindStyledParameterWithLocation("simple", false, "key", runtime.ParamLocationPath, chi.URLParam(r, "key"), &key)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "key", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.PutObjectField(w, r, namespace, key)
	})
}

func (siw *ServerInterfaceWrapper) SubmitEntry(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.SubmitEntry)
}

func (siw *ServerInterfaceWrapper) RunCommand(w http.ResponseWriter, r *http.Request) {
	var command string

	err := runtime.BindStyledParameterWithLocation("simple", false, "command", runtime.ParamLocationPath, chi.URLParam(r, "command"), &command)
	if err != nil {
		siw.ErrorHandlerFunc(w, r, &InvalidParamFormatError{ParamName: "command", Err: err})
		return
	}

	siw.serve(w, r, func(w http.ResponseWriter, r *http.Request) {
		siw.Handler.RunCommand(w, r, command)
	})
}

func (siw *ServerInterfaceWrapper) WatchState(w http.ResponseWriter, r *http.Request) {
	siw.serve(w, r, siw.Handler.WatchState)
}

type InvalidParamFormatError struct {
	ParamName string
	Err       error
}

func (e *InvalidParamFormatError) Error() string {
	return fmt.Sprintf("Invalid format for parameter %s: %s", e.ParamName, e.Err.Error())
}

func (e *InvalidParamFormatError) Unwrap() error {
	return e.Err
}

type ChiServerOptions struct {
	BaseURL          string
	BaseRouter       chi.Router
	Middlewares      []MiddlewareFunc
	ErrorHandlerFunc func(w http.ResponseWriter, r *http.Request, err error)
}

// HandlerWithOptions creates http.Handler with additional options.
func HandlerWithOptions(si ServerInterface, options ChiServerOptions) http.Handler {
	r := options.BaseRouter
	if r == nil {
		r = chi.NewRouter()
	}
	if options.ErrorHandlerFunc == nil {
		options.ErrorHandlerFunc = func(w http.ResponseWriter, r *http.Request, err error) {
			http.Error(w, err.Error(), http.StatusBadRequest)
		}
	}
	wrapper := ServerInterfaceWrapper{
		Handler:            si,
		HandlerMiddlewares: options.Middlewares,
		ErrorHandlerFunc:   options.ErrorHandlerFunc,
	}

	r.Group(func(r chi.Router) {
		r.Get(options.BaseURL+"/v1/state", wrapper.GetState)
		r.Get(options.BaseURL+"/v1/log", wrapper.GetLog)
		r.Put(options.BaseURL+"/v1/objects/{namespace}/{key}", wrapper.PutObjectField)
		r.Post(options.BaseURL+"/v1/entries", wrapper.SubmitEntry)
		r.Post(options.BaseURL+"/v1/commands/{command}", wrapper.RunCommand)
		r.Get(options.BaseURL+"/v1/watch", wrapper.WatchState)
	})

	return r
}
