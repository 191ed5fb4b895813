// Command ngpcat exercises an Engine over a loopback driver, in the
// spirit of the teacher's cmd/iecat exercising part5 over a real
// net.Conn: no physical link hardware is needed to drive listen/send/
// route through the full stack.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	flag "github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/nodeproto/ngp"
	"github.com/nodeproto/ngp/link"
	"github.com/nodeproto/ngp/socket"
)

var CmdLog = logrus.New()

var (
	nodeFlag    = flag.Uint("node", 1, "This instance's 8-bit node `address`.")
	portFlag    = flag.Uint("port", 1, "Local port to bind.")
	routeFlag   = flag.String("route", "", "Routing table `string`, e.g. \"1:lo0,2:lo0\".")
	asyncFlag   = flag.Bool("async", false, "Deliver loopback frames asynchronously instead of re-entering synchronously.")
	dstNode     = flag.Uint("dst-node", 1, "Destination node for send.")
	dstPort     = flag.Uint("dst-port", 2, "Destination port for send.")
	streamFlag  = flag.Bool("stream", false, "Use a stream socket instead of datagram.")
	timeoutFlag = flag.Duration("timeout", 5*time.Second, "Operation timeout.")
)

func main() {
	flag.Parse()
	CmdLog.SetFormatter(&logrus.TextFormatter{})

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: ngpcat [flags] listen|send|route [payload]")
		os.Exit(2)
	}

	engine, err := ngp.New(ngp.Config{LocalNode: uint8(*nodeFlag), Logger: CmdLog})
	if err != nil {
		CmdLog.WithError(err).Fatal("engine init failed")
	}

	lo := link.NewLoopback("lo0", uint8(*nodeFlag), 4+128, *asyncFlag)
	lo.Run()
	defer lo.Close()
	if err := engine.RegisterInterface(lo.Iface); err != nil {
		CmdLog.WithError(err).Fatal("interface registration failed")
	}

	route := *routeFlag
	if route == "" {
		route = fmt.Sprintf("%d:lo0", uint8(*nodeFlag))
	}
	if err := engine.LoadRouteTable(route); err != nil {
		CmdLog.WithError(err).Fatal("route table load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-signals
		cancel()
	}()

	switch flag.Arg(0) {
	case "listen":
		if err := runListen(ctx, engine); err != nil {
			CmdLog.WithError(err).Fatal("listen failed")
		}
	case "send":
		payload := "hello"
		if flag.NArg() > 1 {
			payload = flag.Arg(1)
		}
		if err := runSend(engine, payload); err != nil {
			CmdLog.WithError(err).Fatal("send failed")
		}
	case "route":
		fmt.Println(route)
	default:
		fmt.Fprintf(os.Stderr, "unknown subcommand %q\n", flag.Arg(0))
		os.Exit(2)
	}
}

// runListen binds a socket at portFlag and echoes payloads to the log
// until ctx is cancelled. An errgroup supervises the receive loop
// alongside the signal-driven shutdown. With --stream the socket is only
// put in Listening: no connection is accepted, and the loop reads the
// listener's own receive queue, which stream data never reaches, so
// nothing is logged.
func runListen(ctx context.Context, engine *ngp.Engine) error {
	typ := socket.Dgram
	if *streamFlag {
		typ = socket.Stream
	}
	s, err := engine.Socket(typ)
	if err != nil {
		return err
	}
	if err := engine.Bind(s, uint8(*portFlag)); err != nil {
		return err
	}
	if typ == socket.Stream {
		if err := engine.Listen(s, 1); err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		buf := make([]byte, 256)
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}
			n, srcNode, srcPort, err := engine.RecvFrom(s, buf, time.Second)
			if err == ngp.ErrTimeout {
				continue
			}
			if err != nil {
				return err
			}
			CmdLog.WithFields(logrus.Fields{"src_node": srcNode, "src_port": srcPort}).
				Infof("recv: %s", buf[:n])
		}
	})

	<-ctx.Done()
	_ = g.Wait()
	return nil
}

func runSend(engine *ngp.Engine, payload string) error {
	typ := socket.Dgram
	if *streamFlag {
		typ = socket.Stream
	}
	s, err := engine.Socket(typ)
	if err != nil {
		return err
	}
	if err := engine.Bind(s, 0); err != nil {
		return err
	}

	if typ == socket.Dgram {
		_, err := engine.SendTo(s, []byte(payload), uint8(*dstNode), uint8(*dstPort))
		return err
	}

	if err := engine.Connect(s, uint8(*dstNode), uint8(*dstPort), *timeoutFlag); err != nil {
		return err
	}
	_, err = engine.StreamSend(s, []byte(payload), *timeoutFlag)
	return err
}
