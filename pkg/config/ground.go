package config

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"

	"github.com/robotalks/downlink.go/pkg/link"
	"github.com/robotalks/downlink.go/pkg/link/mqtt"
)

// Ground provides common options for the ground tools.
type Ground struct {
	Ref link.NodeRef

	// RegistryURL specifies the URL of the node registry.
	// e.g. mqtt://host:port/topic-prefix
	RegistryURL string
}

var defaultGround = Ground{
	Ref:         link.NodeRef{Type: NodeType},
	RegistryURL: "mqtt://localhost:1883/sat/",
}

func init() {
	if val := os.Getenv("DOWNLINK_ID"); val != "" {
		defaultGround.Ref.ID = val
	}
	if val := os.Getenv("DOWNLINK_REGISTRY_URL"); val != "" {
		defaultGround.RegistryURL = val
	}
}

// SetupGroundFlags sets up command line flags.
func SetupGroundFlags() {
	flag.StringVar(&defaultGround.Ref.ID, "node", defaultGround.Ref.ID, "Downlink node ID to connect.")
	flag.StringVar(&defaultGround.RegistryURL, "registry", defaultGround.RegistryURL, "Node registry URL.")
}

// NewGround creates a Ground with default configurations.
func NewGround() *Ground {
	conf := defaultGround
	return &conf
}

// NewConnector creates a Connector using current config.
func (g *Ground) NewConnector() (link.Connector, error) {
	parsedURL, err := url.Parse(g.RegistryURL)
	if err != nil {
		return nil, fmt.Errorf("invalid registry URL: %v", err)
	}
	switch parsedURL.Scheme {
	case "mqtt", "tcp", "ssl", "ws", "wss":
		return mqtt.NewConnector(g.RegistryURL)
	default:
		return nil, fmt.Errorf("unknown registry URL scheme: %q", parsedURL.Scheme)
	}
}

// MustNewConnector creates a Connector and fails on error.
func (g *Ground) MustNewConnector() link.Connector {
	conn, err := g.NewConnector()
	if err != nil {
		log.Fatalln(err)
	}
	return conn
}

// Connect directly connects to the node.
func (g *Ground) Connect(ctx context.Context) (link.Conn, error) {
	if !g.Ref.IsValid() {
		return nil, fmt.Errorf("node id must be specified")
	}
	connector, err := g.NewConnector()
	if err != nil {
		return nil, err
	}
	return connector.Connect(ctx, g.Ref)
}
