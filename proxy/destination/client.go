package destination

import (
	"context"

	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	logging "github.com/sirupsen/logrus"
)

// destinationScheme is the path scheme understood by the control plane.
const destinationScheme = "k8s"

type grpcClient struct {
	api          pb.DestinationClient
	contextToken string
	log          *logging.Entry
}

// NewClient wraps a control-plane Destination API client. The context
// token identifies this proxy on every subscription it opens.
func NewClient(api pb.DestinationClient, contextToken string, log *logging.Entry) Client {
	return &grpcClient{
		api:          api,
		contextToken: contextToken,
		log:          log.WithField("component", "destination-client"),
	}
}

// Resolve opens a server-streaming Get for the authority and returns a
// non-blocking handle over it.
func (c *grpcClient) Resolve(ctx context.Context, authority Authority, reason string) (DestinationStream, error) {
	ctx, cancel := context.WithCancel(ctx)
	stream, err := c.api.Get(ctx, &pb.GetDestination{
		Scheme:       destinationScheme,
		Path:         authority.String(),
		ContextToken: c.contextToken,
	})
	if err != nil {
		cancel()
		return nil, err
	}
	c.log.Debugf("Opened destination stream for %s (%s)", authority, reason)
	return newUpdateRx(stream, cancel), nil
}
