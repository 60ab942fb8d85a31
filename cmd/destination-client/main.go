package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	grpc_prometheus "github.com/grpc-ecosystem/go-grpc-prometheus"
	pb "github.com/linkerd/linkerd2-proxy-api/go/destination"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"

	"github.com/amargherio/linkerd2-proxy/pkg/admin"
	"github.com/amargherio/linkerd2-proxy/pkg/flags"
	"github.com/amargherio/linkerd2-proxy/proxy/destination"
)

// A debug client for the discovery core: resolves an authority against a
// control plane and prints every update the resolver delivers.

func main() {
	addr := flag.String("addr", ":8086", "address of the destination service")
	path := flag.String("path", "web.default.svc.cluster.local:8080", "authority to resolve")
	token := flag.String("token", "", "context token to send with the subscription")
	metricsAddr := flag.String("metrics-addr", ":9990", "address to serve scrapable metrics on")
	flags.ConfigureAndParse()

	authority, err := parseAuthority(*path)
	if err != nil {
		log.Fatalf("Invalid authority [%s]: %s", *path, err)
	}

	conn, err := grpc.Dial(
		*addr,
		grpc.WithInsecure(),
		grpc.WithUnaryInterceptor(grpc_prometheus.UnaryClientInterceptor),
		grpc.WithStreamInterceptor(grpc_prometheus.StreamClientInterceptor),
	)
	if err != nil {
		log.Fatal(err.Error())
	}
	defer conn.Close()

	client := destination.NewClient(pb.NewDestinationClient(conn), *token, log.NewEntry(log.StandardLogger()))
	resolver := destination.NewResolver(client, log.NewEntry(log.StandardLogger()))

	adminServer := admin.NewServer(*metricsAddr, resolver, false)
	go func() {
		log.Infof("starting admin server on %s", *metricsAddr)
		if err := adminServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Admin server error (%s): %s", *metricsAddr, err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	rx := resolver.Subscribe(ctx, authority)
	defer rx.Stop()
	go resolver.Run(ctx, destination.DefaultPollInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	go func() {
		for {
			update, ok := rx.Next(ctx)
			if !ok {
				return
			}
			logUpdate(update)
		}
	}()

	<-stop
	log.Info("shutting down")
	adminServer.Shutdown(ctx)
}

func parseAuthority(path string) (destination.Authority, error) {
	host, portStr, ok := strings.Cut(path, ":")
	if !ok || host == "" {
		return destination.Authority{}, errors.New("expected host:port")
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		return destination.Authority{}, err
	}
	return destination.Authority{Name: host, Port: uint16(port)}, nil
}

func logUpdate(update destination.Update) {
	switch update.Kind {
	case destination.UpdateAdd:
		log.Infof("Add: %s weight=%d hint=%s identity=%q labels=%v",
			update.Addr, update.Metadata.Weight, update.Metadata.Hint, update.Metadata.Identity, update.Metadata.Labels)
	case destination.UpdateRemove:
		log.Infof("Remove: %s", update.Addr)
	case destination.UpdateNoEndpoints:
		log.Info("NoEndpoints")
	}
}
