// Package webui is a small JSON monitoring host over the storage's read
// API. It is not part of the storage core.
package webui

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/braintree/manners"
	"github.com/gocraft/web"

	"github.com/gohangfire/hangfire"
)

type Server struct {
	client   *hangfire.Client
	hostPort string
	server   *manners.GracefulServer
	router   *web.Router
	wg       sync.WaitGroup
}

type context struct {
	*Server
}

// NewServer builds the monitoring host. Call Start to serve.
func NewServer(storage *hangfire.Storage, hostPort string) *Server {
	server := &Server{
		client:   hangfire.NewClient(storage),
		hostPort: hostPort,
		server:   manners.NewServer(),
	}

	router := web.New(context{})
	router.Middleware(func(c *context, rw web.ResponseWriter, r *web.Request, next web.NextMiddlewareFunc) {
		c.Server = server
		next(rw, r)
	})
	router.Get("/queues", (*context).queues)
	router.Get("/servers", (*context).servers)
	router.Get("/stats", (*context).stats)
	router.Get("/jobs/:job_id", (*context).jobDetails)
	server.router = router

	return server
}

func (s *Server) Start() {
	s.server.Addr = s.hostPort
	s.server.Handler = s.router
	s.wg.Add(1)
	go func() {
		s.server.ListenAndServe()
		s.wg.Done()
	}()
}

func (s *Server) Stop() {
	s.server.Close()
	s.wg.Wait()
}

func (c *context) queues(rw web.ResponseWriter, r *web.Request) {
	queues, err := c.client.Queues()
	render(rw, queues, err)
}

func (c *context) servers(rw web.ResponseWriter, r *web.Request) {
	servers, err := c.client.Servers()
	render(rw, servers, err)
}

func (c *context) stats(rw web.ResponseWriter, r *web.Request) {
	stats, err := c.client.Statistics()
	render(rw, stats, err)
}

func (c *context) jobDetails(rw web.ResponseWriter, r *web.Request) {
	details, err := c.client.JobDetails(r.PathParams["job_id"])
	if err == nil && details == nil {
		renderNotFound(rw)
		return
	}
	render(rw, details, err)
}

func render(rw http.ResponseWriter, response interface{}, err error) {
	rw.Header().Set("Content-Type", "application/json; charset=utf-8")
	if err != nil {
		renderError(rw, err)
		return
	}
	jsonData, err := json.MarshalIndent(response, "", "\t")
	if err != nil {
		renderError(rw, err)
		return
	}
	rw.Write(jsonData)
}

func renderNotFound(rw http.ResponseWriter) {
	rw.WriteHeader(404)
	fmt.Fprintf(rw, `{"error": "not_found"}`)
}

func renderError(rw http.ResponseWriter, err error) {
	rw.WriteHeader(500)
	fmt.Fprintf(rw, `{"error": "%s"}`, err.Error())
}
