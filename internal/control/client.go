package control

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/signalsfoundry/shipping-simulator/internal/stats"
	"github.com/signalsfoundry/shipping-simulator/model"
	"github.com/signalsfoundry/shipping-simulator/routing"
)

// Client calls the control service.
type Client struct {
	conn grpc.ClientConnInterface
}

// NewClient wraps an existing connection.
func NewClient(conn grpc.ClientConnInterface) *Client {
	return &Client{conn: conn}
}

// Dial connects to target without transport security.
func Dial(target string, opts ...grpc.DialOption) (*Client, *grpc.ClientConn, error) {
	opts = append([]grpc.DialOption{grpc.WithTransportCredentials(insecure.NewCredentials())}, opts...)
	conn, err := grpc.NewClient(target, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return NewClient(conn), conn, nil
}

// WithRequestID attaches a request id the server will log and trace under.
func WithRequestID(ctx context.Context, id string) context.Context {
	return metadata.AppendToOutgoingContext(ctx, requestIDMetadataKey, id)
}

// AdvanceResult reports where the clock ended up.
type AdvanceResult struct {
	Now      model.Time
	Executed int
}

// Advance runs the simulation to until.
func (c *Client) Advance(ctx context.Context, until model.Time) (AdvanceResult, error) {
	out, err := c.call(ctx, AdvanceMethod, map[string]any{"until": float64(until)})
	if err != nil {
		return AdvanceResult{}, err
	}
	return AdvanceResult{
		Now:      model.Time(out.GetFields()["now"].GetNumberValue()),
		Executed: int(out.GetFields()["executed"].GetNumberValue()),
	}, nil
}

// Stats fetches the current statistics snapshot.
func (c *Client) Stats(ctx context.Context) (stats.Snapshot, error) {
	var snap stats.Snapshot
	out, err := c.call(ctx, StatsMethod, nil)
	if err != nil {
		return snap, err
	}
	raw, err := out.MarshalJSON()
	if err != nil {
		return snap, fmt.Errorf("encode stats: %w", err)
	}
	if err := json.Unmarshal(raw, &snap); err != nil {
		return snap, fmt.Errorf("decode stats: %w", err)
	}
	return snap, nil
}

// Report fetches the rendered text report.
func (c *Client) Report(ctx context.Context) (string, error) {
	out, err := c.call(ctx, StatsMethod, map[string]any{"report": true})
	if err != nil {
		return "", err
	}
	return out.GetFields()["report"].GetStringValue(), nil
}

// Connect lists every path between two locations.
func (c *Client) Connect(ctx context.Context, start, end string) ([]string, error) {
	out, err := c.call(ctx, ConnectMethod, map[string]any{"start": start, "end": end})
	if err != nil {
		return nil, err
	}
	return stringList(out, "paths"), nil
}

// Explore lists paths within the active limits of cons.
func (c *Client) Explore(ctx context.Context, cons routing.Constraints) ([]string, error) {
	req := map[string]any{"start": cons.Start}
	if cons.End != "" {
		req["end"] = cons.End
	}
	if cons.Active&routing.ConstrainDistance != 0 {
		req["max_distance"] = float64(cons.MaxDistance)
	}
	if cons.Active&routing.ConstrainCost != 0 {
		req["max_cost"] = float64(cons.MaxCost)
	}
	if cons.Active&routing.ConstrainHours != 0 {
		req["max_hours"] = float64(cons.MaxHours)
	}
	if cons.Active&routing.ConstrainExpedited != 0 {
		req["expedited"] = cons.Expedited == model.ExpediteSupported
	}
	out, err := c.call(ctx, ExploreMethod, req)
	if err != nil {
		return nil, err
	}
	return stringList(out, "paths"), nil
}

// Routes returns the shortest path for every customer pair, keyed
// "source:dest".
func (c *Client) Routes(ctx context.Context, method routing.Method) (map[string]string, error) {
	out, err := c.call(ctx, RoutesMethod, map[string]any{"method": method.String()})
	if err != nil {
		return nil, err
	}
	routes := make(map[string]string)
	for key, v := range out.GetFields()["routes"].GetStructValue().GetFields() {
		routes[key] = v.GetStringValue()
	}
	return routes, nil
}

func (c *Client) call(ctx context.Context, method string, req map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(req)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	out := new(structpb.Struct)
	if err := c.conn.Invoke(ctx, method, in, out); err != nil {
		return nil, err
	}
	return out, nil
}

func stringList(s *structpb.Struct, key string) []string {
	values := s.GetFields()[key].GetListValue().GetValues()
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = v.GetStringValue()
	}
	return out
}
