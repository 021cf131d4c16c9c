package server

import (
	restfulspec "github.com/emicklei/go-restful-openapi/v2"
	"github.com/emicklei/go-restful/v3"
	"github.com/go-openapi/spec"

	"github.com/run-bigpig/llm-guardrails/pkg/guardrails"
	"github.com/run-bigpig/llm-guardrails/pkg/prompts"
)

// MIMEEventStream is the content type of the streaming endpoint
const MIMEEventStream = "text/event-stream"

// OpenAPIPath serves the generated OpenAPI document
const OpenAPIPath = "/api/v1/openapi.json"

// RegisterRoutes adds the guardrails web service to the container
func RegisterRoutes(container *restful.Container, handler *Handler) {
	ws := new(restful.WebService)

	ws.
		Path("/api/v1").
		Consumes(restful.MIME_JSON).
		Produces(restful.MIME_JSON)

	ws.
		Route(ws.GET("/health").
			To(handler.Health).
			Doc("Health check").
			Metadata(restfulspec.KeyOpenAPITags, []string{"health"}).
			Writes(HealthResponse{}).
			Returns(200, "OK", HealthResponse{}))

	ws.
		Route(ws.GET("/samples").
			To(handler.Samples).
			Doc("Demo prompts").
			Metadata(restfulspec.KeyOpenAPITags, []string{"catalog"}).
			Writes([]prompts.Sample{}).
			Returns(200, "OK", []prompts.Sample{}))

	ws.
		Route(ws.GET("/layers").
			To(handler.Layers).
			Doc("Governance layers that decide content visibility").
			Metadata(restfulspec.KeyOpenAPITags, []string{"catalog"}).
			Writes([]prompts.Layer{}).
			Returns(200, "OK", []prompts.Layer{}))

	ws.
		Route(ws.POST("/check").
			To(handler.Check).
			Doc("Run a prompt through the provider and return text plus safety ratings").
			Metadata(restfulspec.KeyOpenAPITags, []string{"check"}).
			Reads(CheckRequest{}).
			Writes(CheckResponse{}).
			Returns(200, "OK", CheckResponse{}).
			Returns(400, "Bad Request", ErrorResponse{}))

	ws.
		Route(ws.POST("/check/stream").
			To(handler.CheckStream).
			Doc("Stream the provider response as server-sent events: start, chunk, then done or error").
			Metadata(restfulspec.KeyOpenAPITags, []string{"check"}).
			Produces(restful.MIME_JSON, MIMEEventStream).
			Reads(CheckRequest{}).
			Returns(200, "OK", StreamChunkEvent{}).
			Returns(400, "Bad Request", ErrorResponse{}))

	container.Add(ws)
}

func enrichSwaggerObject(swo *spec.Swagger) {
	swo.Info = &spec.Info{
		InfoProps: spec.InfoProps{
			Title:       "LLM Guardrails API",
			Description: "Relays prompts to a hosted model and reports its safety ratings",
			Version:     Version,
		},
	}
	swo.Tags = []spec.Tag{
		{TagProps: spec.TagProps{Name: "health", Description: "Health checks"}},
		{TagProps: spec.TagProps{Name: "catalog", Description: "Sample prompts and governance layers"}},
		{TagProps: spec.TagProps{Name: "check", Description: "Guardrail checks"}},
	}
}

// NewContainer builds the restful container with filters, routes and the
// OpenAPI document
func NewContainer(guardrail guardrails.Guardrail, transport string, options ...Option) *restful.Container {
	s := newSettings(options...)

	container := restful.NewContainer()
	container.Filter(RequestID)
	container.Filter(AccessLog(s.logger))
	container.Filter(RecoverPanic(s.logger))

	RegisterRoutes(container, NewHandler(guardrail, transport, s.logger))

	container.Add(restfulspec.NewOpenAPIService(restfulspec.Config{
		WebServices:                   container.RegisteredWebServices(),
		APIPath:                       OpenAPIPath,
		PostBuildSwaggerObjectHandler: enrichSwaggerObject,
	}))

	return container
}
