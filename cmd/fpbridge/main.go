package main

//go-build: CGO_ENABLED=0

import (
	"context"
	"flag"
	"net/http"

	"github.com/golang/glog"

	"github.com/robotalks/fpm.go/pkg/bridge"
	"github.com/robotalks/fpm.go/pkg/comm/mqtt"
	"github.com/robotalks/fpm.go/pkg/env"
	"github.com/robotalks/fpm.go/pkg/framework"
	"github.com/robotalks/fpm.go/pkg/metrics"
)

var (
	bridgeID    = env.MachineID()
	description = "Fingerprint Module Bridge"
	listenAddr  = ":8080"
)

func init() {
	env.SetupFlags()
	flag.StringVar(&bridgeID, "id", bridgeID, "Bridge ID")
	flag.StringVar(&description, "desc", description, "Bridge description")
	flag.StringVar(&listenAddr, "listen", listenAddr, "Websocket and metrics listen address, empty to disable")
}

func main() {
	flag.Parse()

	conf, err := env.Load()
	if err != nil {
		glog.Exitln(err)
	}
	rw := conf.MustOpen()
	reg := metrics.NewRegistry()
	b := bridge.New(bridgeID, conf.NewClient(rw)).WithMetrics(metrics.NewBridgeMetrics(reg))

	runner := framework.NewRunner(context.Background()).HandleSignals()
	runner.Go("sensor", framework.RunFunc(func(ctx context.Context) error {
		<-ctx.Done()
		return rw.Close()
	}))

	info := mqtt.BridgeInfo{Description: description, Device: conf.Port}
	if listenAddr != "" {
		info.Endpoints = append(info.Endpoints, "ws://"+listenAddr+bridge.WebsocketPath)
		runner.Go("http", &bridge.HTTPServer{
			Addr: listenAddr,
			Handlers: map[string]http.Handler{
				bridge.WebsocketPath: b.WebsocketHandler(),
				"/metrics":           metrics.Handler(reg),
			},
		})
	}
	if conf.MQTTURL != "" {
		endpoint, err := bridge.NewMQTTEndpoint(b, conf.MQTTURL, info)
		if err != nil {
			glog.Exitf("MQTT endpoint: %v", err)
		}
		runner.Go("mqtt", endpoint)
	}

	glog.Infof("bridge %s serving %s", bridgeID, conf.Port)
	if err := runner.Wait(); err != nil {
		glog.Exitln(err)
	}
}
