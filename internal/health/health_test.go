package health

import (
	"context"
	"errors"
	"net"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/test/bufconn"
)

var _ = Describe("Health", func() {
	var (
		s      *Server
		conn   *grpc.ClientConn
		client healthpb.HealthClient
	)

	BeforeEach(func() {
		lis := bufconn.Listen(1024 * 1024)
		s = NewServer()
		go func() { _ = s.Serve(lis) }()

		var err error
		conn, err = grpc.NewClient("passthrough:///bufnet",
			grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
				return lis.DialContext(ctx)
			}),
			grpc.WithTransportCredentials(insecure.NewCredentials()),
		)
		Expect(err).To(BeNil())
		client = healthpb.NewHealthClient(conn)
	})

	AfterEach(func() {
		Expect(conn.Close()).To(Succeed())
		s.Stop()
	})

	status := func() healthpb.HealthCheckResponse_ServingStatus {
		res, err := client.Check(context.Background(), &healthpb.HealthCheckRequest{})
		Expect(err).To(BeNil())
		return res.Status
	}

	Specify("serving when the store answers", func() {
		s.Check(context.Background(), func(context.Context) error { return nil })
		Expect(status()).To(Equal(healthpb.HealthCheckResponse_SERVING))
	})
	Specify("not serving when the ping fails", func() {
		s.Check(context.Background(), func(context.Context) error { return errors.New("no primary") })
		Expect(status()).To(Equal(healthpb.HealthCheckResponse_NOT_SERVING))
	})
	Specify("recovers after a failed ping", func() {
		s.Check(context.Background(), func(context.Context) error { return errors.New("no primary") })
		s.Check(context.Background(), func(context.Context) error { return nil })
		Expect(status()).To(Equal(healthpb.HealthCheckResponse_SERVING))
	})
})
