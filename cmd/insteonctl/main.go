// Command insteonctl dials a PLM and issues a single session verb as a
// subcommand, following GoAethereal-modbus's convention of carrying no
// command-line front-end of its own: the CLI shape is borrowed from
// pascaldekloe-part5/cmd/iecat instead (stdlib flag, log.New(os.Stderr,
// ...), signal-driven shutdown).
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jcollie/insteon"
)

var cmdLog = log.New(os.Stderr, filepath.Base(os.Args[0])+": ", 0)

var (
	kindFlag     = flag.String("kind", "tcp", "Transport `kind`: tcp or serial.")
	endpointFlag = flag.String("endpoint", "localhost:9761", "TCP host:port or serial device `path`.")
	timeoutFlag  = flag.Duration("timeout", 10*time.Second, "Command `timeout`.")
)

func main() {
	log.SetFlags(0)
	flag.Usage = usage
	flag.Parse()
	args := flag.Args()
	if len(args) < 1 {
		usage()
		os.Exit(2)
	}

	cfg := insteon.Config{Kind: *kindFlag, Endpoint: *endpointFlag}
	if err := cfg.Verify(); err != nil {
		cmdLog.Fatal(err)
	}

	sess, err := insteon.NewSession(cfg, log.New(os.Stderr, "", log.LstdFlags))
	if err != nil {
		cmdLog.Fatal(err)
	}

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-signals
		cmdLog.Print("interrupted")
		cancel()
	}()

	if err := sess.Start(ctx); err != nil {
		cmdLog.Fatal(err)
	}
	defer sess.Close()

	select {
	case <-sess.Ready():
	case <-ctx.Done():
		cmdLog.Fatal(ctx.Err())
	case <-time.After(*timeoutFlag):
		cmdLog.Fatal("timed out waiting for session readiness")
	}

	cctx, ccancel := context.WithTimeout(ctx, *timeoutFlag)
	defer ccancel()

	if err := dispatch(cctx, sess, args[0], args[1:]); err != nil {
		cmdLog.Fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [flags] <command> [args]\n\n", filepath.Base(os.Args[0]))
	fmt.Fprint(os.Stderr, "Commands:\n"+
		"  on <addr> [level]     send On (level defaults to 0xff)\n"+
		"  off <addr>            send Off\n"+
		"  status <addr>         send Status Request and print the report\n"+
		"  iminfo                query the PLM's own identity\n"+
		"  alldb                 walk and print the PLM's all-link database\n\n"+
		"Flags:\n")
	flag.PrintDefaults()
}

func dispatch(ctx context.Context, sess *insteon.Session, cmd string, args []string) error {
	switch cmd {
	case "on":
		addr, level, err := parseAddrLevel(args)
		if err != nil {
			return err
		}
		return sess.SendOn(ctx, addr, level, nil)

	case "off":
		addr, err := parseAddr(args)
		if err != nil {
			return err
		}
		return sess.SendOff(ctx, addr, nil)

	case "status":
		addr, err := parseAddr(args)
		if err != nil {
			return err
		}
		report, err := sess.SendStatusRequest(ctx, addr, false)
		if err != nil {
			return err
		}
		fmt.Printf("%s: db_delta=%#02x level=%d%%\n", addr, report.DBDelta, report.Percent)
		return nil

	case "iminfo":
		info, err := sess.SendGetIMInfo(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("%s category=%#02x subcategory=%#02x firmware=%#02x\n", info.Address, info.Category, info.Subcategory, info.Firmware)
		return nil

	case "alldb":
		records, err := sess.GetAllLinkDatabase(ctx)
		if err != nil {
			return err
		}
		for _, r := range records {
			fmt.Printf("%s group=%d flags=%#02x\n", r.Addr, r.Group, r.LinkFlags)
		}
		return nil

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func parseAddr(args []string) (insteon.Address, error) {
	if len(args) < 1 {
		return insteon.Address{}, fmt.Errorf("missing address argument")
	}
	return insteon.ParseAddress(args[0])
}

func parseAddrLevel(args []string) (insteon.Address, byte, error) {
	addr, err := parseAddr(args)
	if err != nil {
		return addr, 0, err
	}
	if len(args) < 2 {
		return addr, 0xff, nil
	}
	var level uint64
	if _, err := fmt.Sscanf(args[1], "%v", &level); err != nil {
		return addr, 0, fmt.Errorf("invalid level %q: %w", args[1], err)
	}
	return addr, byte(level), nil
}
