package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/ioutil"
	"net"
	"net/http"
	"os"
	"os/signal"
	"reflect"
	"strconv"
	"syscall"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/filecoin-project/go-jsonrpc/auth"
	"github.com/ipfs/go-cid"
	"github.com/urfave/cli/v2"
	"golang.org/x/xerrors"

	"github.com/filecoin-project/venus-ledger/pkg/config"
	"github.com/filecoin-project/venus-ledger/pkg/jwtauth"
	"github.com/filecoin-project/venus-ledger/pkg/metrics"
	"github.com/filecoin-project/venus-ledger/pkg/provenance"
	"github.com/filecoin-project/venus-ledger/pkg/repo"
	"github.com/filecoin-project/venus-ledger/pkg/store"
	"github.com/filecoin-project/venus-ledger/pkg/types"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	infoColor = color.New(color.FgCyan)
)

var initCmd = &cli.Command{
	Name:  "init",
	Usage: "create a ledger repo",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "backend",
			Usage: "store backend: memory, badger or rpc",
			Value: config.BackendBadger,
		},
		&cli.StringFlag{
			Name:  "max-payload-size",
			Usage: "largest payload the store admits, e.g. 512KiB",
		},
		&cli.StringFlag{
			Name:  "rpc-address",
			Usage: "remote store endpoint for the rpc backend",
		},
		&cli.StringFlag{
			Name:  "rpc-token",
			Usage: "bearer token sent to the remote store",
		},
	},
	Action: func(cctx *cli.Context) error {
		cfg := config.NewDefaultConfig()
		cfg.Store.Backend = cctx.String("backend")
		if size := cctx.String("max-payload-size"); size != "" {
			cfg.Store.MaxPayloadSize = size
		}
		if addr := cctx.String("rpc-address"); addr != "" {
			cfg.Store.RPC.Address = addr
		}
		if token := cctx.String("rpc-token"); token != "" {
			cfg.Store.RPC.Token = token
		}

		p := cctx.String("repo")
		if err := repo.InitFSRepo(p, cfg); err != nil {
			return err
		}
		fmt.Fprintf(cctx.App.Writer, "initialized ledger repo at %s\n", p) // nolint: errcheck
		return nil
	},
}

var putCmd = &cli.Command{
	Name:      "put",
	Usage:     "store a payload and register its account",
	ArgsUsage: "[file]",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "origin",
			Usage: "record the payload's origin in its lineage",
		},
		&cli.StringFlag{
			Name:  "creator",
			Usage: "record the payload's creator in its lineage",
		},
	},
	Action: func(cctx *cli.Context) error {
		data, err := readInput(cctx)
		if err != nil {
			return err
		}
		return withNode(cctx, func(ctx context.Context, n *node) error {
			c, created, err := n.machine.StoreAndRegister(ctx, data)
			if err != nil {
				return err
			}
			if cctx.IsSet("origin") || cctx.IsSet("creator") {
				if _, err := n.tracker.Track(ctx, data, cctx.String("origin"), cctx.String("creator")); err != nil {
					return err
				}
			}
			if created {
				if _, err := n.machine.Flush(ctx); err != nil {
					return err
				}
				okColor.Fprintf(cctx.App.Writer, "%s registered\n", c) // nolint: errcheck
				return nil
			}
			infoColor.Fprintf(cctx.App.Writer, "%s already registered\n", c) // nolint: errcheck
			return nil
		})
	},
}

var getCmd = &cli.Command{
	Name:      "get",
	Usage:     "print a stored payload",
	ArgsUsage: "<cid>",
	Action: func(cctx *cli.Context) error {
		c, err := cidArg(cctx, 0)
		if err != nil {
			return err
		}
		return withNode(cctx, func(ctx context.Context, n *node) error {
			data, err := n.machine.Retrieve(ctx, c)
			if err != nil {
				return err
			}
			_, err = cctx.App.Writer.Write(data)
			return err
		})
	},
}

var applyCmd = &cli.Command{
	Name:      "apply",
	Usage:     "apply a JSON message envelope",
	ArgsUsage: "[file]",
	Description: `The envelope names the caller and the message, e.g.

   {"caller":{"/":"bafy..."},"message":{"type":"mint","to":{"/":"bafy..."},"amount":10}}`,
	Action: func(cctx *cli.Context) error {
		data, err := readInput(cctx)
		if err != nil {
			return err
		}
		var env types.Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			return err
		}
		return withNode(cctx, func(ctx context.Context, n *node) error {
			out := n.machine.ApplyEnvelope(ctx, &env)
			if !out.Applied() {
				failColor.Fprintln(cctx.App.Writer, out.String()) // nolint: errcheck
				if out.Err != nil {
					return xerrors.Errorf("message rejected: %w", out.Err)
				}
				return xerrors.Errorf("message rejected: %s", out.Reason)
			}
			okColor.Fprintln(cctx.App.Writer, out.String()) // nolint: errcheck
			_, err := n.machine.Flush(ctx)
			return err
		})
	},
}

var balanceCmd = &cli.Command{
	Name:      "balance",
	Usage:     "print an account's balance, or the total without arguments",
	ArgsUsage: "[account]",
	Action: func(cctx *cli.Context) error {
		return withNode(cctx, func(ctx context.Context, n *node) error {
			if !cctx.Args().Present() {
				fmt.Fprintf(cctx.App.Writer, "total %d\n", n.machine.TotalBalance()) // nolint: errcheck
				return nil
			}
			id, err := types.ParseAccountID(cctx.Args().First())
			if err != nil {
				return err
			}
			bal, ok := n.machine.Balance(id)
			if !ok {
				return xerrors.Errorf("account %s is not registered", id)
			}
			fmt.Fprintf(cctx.App.Writer, "%d\n", bal) // nolint: errcheck
			return nil
		})
	},
}

var tallyCmd = &cli.Command{
	Name:      "tally",
	Usage:     "count the votes cast on a proposal",
	ArgsUsage: "<proposal>",
	Action: func(cctx *cli.Context) error {
		proposal, err := strconv.ParseUint(cctx.Args().First(), 10, 64)
		if err != nil {
			return xerrors.Errorf("invalid proposal id %q: %w", cctx.Args().First(), err)
		}
		return withNode(cctx, func(ctx context.Context, n *node) error {
			support, against := n.machine.Tally(proposal)
			fmt.Fprintf(cctx.App.Writer, "support %d against %d\n", support, against) // nolint: errcheck
			return nil
		})
	},
}

var flushCmd = &cli.Command{
	Name:  "flush",
	Usage: "write the ledger to the store and print its root",
	Action: func(cctx *cli.Context) error {
		return withNode(cctx, func(ctx context.Context, n *node) error {
			root, err := n.machine.Flush(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintln(cctx.App.Writer, root) // nolint: errcheck
			return nil
		})
	},
}

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "serve the repo's store over JSON-RPC",
	Action: func(cctx *cli.Context) error {
		return withNode(cctx, func(ctx context.Context, n *node) error {
			authority, err := jwtauth.NewJwtAuth(ctx, n.repo.Datastore())
			if err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/rpc/v0", store.NewRPCServer(n.backend, authority))
			if mcfg := n.repo.Config().Metrics; mcfg.PrometheusEnabled {
				interval, err := mcfg.Interval()
				if err != nil {
					return err
				}
				exporter, err := metrics.NewPrometheusHandler(interval)
				if err != nil {
					return err
				}
				mux.Handle("/debug/metrics", exporter)
			}
			srv := &http.Server{Handler: mux}

			addr := n.repo.Config().API.Address
			ln, err := net.Listen("tcp", addr)
			if err != nil {
				return xerrors.Errorf("listen on %s: %w", addr, err)
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := srv.Shutdown(shutdownCtx); err != nil {
					log.Errorf("shutting down rpc server: %s", err)
				}
			}()

			log.Infow("serving store", "address", ln.Addr().String(), "backend", n.repo.Config().Store.Backend)
			fmt.Fprintf(cctx.App.Writer, "serving on ws://%s/rpc/v0\n", ln.Addr()) // nolint: errcheck
			if err := srv.Serve(ln); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		})
	},
}

var authCmd = &cli.Command{
	Name:  "auth",
	Usage: "manage tokens for the store endpoint",
	Subcommands: []*cli.Command{
		{
			Name:  "create-token",
			Usage: "sign a token granting the given permissions",
			Flags: []cli.Flag{
				&cli.StringSliceFlag{
					Name:  "perm",
					Usage: "permission to grant: read, write or admin",
					Value: cli.NewStringSlice(string(jwtauth.PermRead), string(jwtauth.PermWrite)),
				},
			},
			Action: func(cctx *cli.Context) error {
				r, err := repo.OpenFSRepo(cctx.String("repo"))
				if err != nil {
					return err
				}
				defer r.Close() // nolint: errcheck

				authority, err := jwtauth.NewJwtAuth(cctx.Context, r.Datastore())
				if err != nil {
					return err
				}
				var perms []auth.Permission
				for _, p := range cctx.StringSlice("perm") {
					perms = append(perms, auth.Permission(p))
				}
				token, err := authority.AuthNew(cctx.Context, perms)
				if err != nil {
					return err
				}
				fmt.Fprintln(cctx.App.Writer, string(token)) // nolint: errcheck
				return nil
			},
		},
	},
}

var lineageCmd = &cli.Command{
	Name:  "lineage",
	Usage: "inspect payload provenance",
	Subcommands: []*cli.Command{
		{
			Name:      "show",
			Usage:     "print the lineage and contribution of a payload",
			ArgsUsage: "<cid>",
			Action: func(cctx *cli.Context) error {
				c, err := cidArg(cctx, 0)
				if err != nil {
					return err
				}
				return withNode(cctx, func(ctx context.Context, n *node) error {
					lin, err := n.tracker.Lineage(ctx, c)
					if err != nil {
						return err
					}
					if err := printJSON(cctx.App.Writer, lin); err != nil {
						return err
					}
					contrib, err := n.tracker.Contribution(ctx, c)
					if xerrors.Is(err, provenance.ErrNotTracked) {
						return nil
					}
					if err != nil {
						return err
					}
					return printJSON(cctx.App.Writer, contrib)
				})
			},
		},
		{
			Name:      "verify",
			Usage:     "check that a tracked payload still hashes to its id",
			ArgsUsage: "<cid>",
			Action: func(cctx *cli.Context) error {
				c, err := cidArg(cctx, 0)
				if err != nil {
					return err
				}
				return withNode(cctx, func(ctx context.Context, n *node) error {
					if _, err := n.tracker.Verify(ctx, c); err != nil {
						failColor.Fprintf(cctx.App.Writer, "%s failed verification\n", c) // nolint: errcheck
						return err
					}
					okColor.Fprintf(cctx.App.Writer, "%s verified\n", c) // nolint: errcheck
					return nil
				})
			},
		},
		{
			Name:      "contribute",
			Usage:     "credit a stored payload to a contributor",
			ArgsUsage: "<cid> <contributor>",
			Action: func(cctx *cli.Context) error {
				c, err := cidArg(cctx, 0)
				if err != nil {
					return err
				}
				contributor := cctx.Args().Get(1)
				if contributor == "" {
					return xerrors.New("missing contributor")
				}
				return withNode(cctx, func(ctx context.Context, n *node) error {
					contrib, err := n.tracker.Contribute(ctx, c, contributor)
					if err != nil {
						return err
					}
					return printJSON(cctx.App.Writer, contrib)
				})
			},
		},
		{
			Name:      "use",
			Usage:     "count one use of a contributed payload",
			ArgsUsage: "<cid>",
			Action: func(cctx *cli.Context) error {
				c, err := cidArg(cctx, 0)
				if err != nil {
					return err
				}
				return withNode(cctx, func(ctx context.Context, n *node) error {
					contrib, err := n.tracker.IncrementUsage(ctx, c)
					if err != nil {
						return err
					}
					return printJSON(cctx.App.Writer, contrib)
				})
			},
		},
	},
}

var configCmd = &cli.Command{
	Name:  "config",
	Usage: "get and set repo config values",
	Subcommands: []*cli.Command{
		{
			Name:      "get",
			Usage:     "print the value at a dotted key, e.g. store.backend",
			ArgsUsage: "<key>",
			Action: func(cctx *cli.Context) error {
				r, err := repo.OpenFSRepo(cctx.String("repo"))
				if err != nil {
					return err
				}
				defer r.Close() // nolint: errcheck

				v, err := r.Config().Get(cctx.Args().First())
				if err != nil {
					return err
				}
				return printConfigValue(cctx.App.Writer, v)
			},
		},
		{
			Name:      "set",
			Usage:     "set the value at a dotted key; the value is TOML, e.g. '\"memory\"'",
			ArgsUsage: "<key> <value>",
			Action: func(cctx *cli.Context) error {
				if cctx.Args().Len() != 2 {
					return xerrors.New("config set takes a key and a value")
				}
				r, err := repo.OpenFSRepo(cctx.String("repo"))
				if err != nil {
					return err
				}
				defer r.Close() // nolint: errcheck

				cfg := *r.Config()
				if err := cfg.Set(cctx.Args().Get(0), cctx.Args().Get(1)); err != nil {
					return err
				}
				return r.ReplaceConfig(&cfg)
			},
		},
	},
}

func withNode(cctx *cli.Context, fn func(context.Context, *node) error) error {
	n, err := openNode(cctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.Warnf("closing repo: %s", err)
		}
	}()
	return fn(cctx.Context, n)
}

// readInput reads the file named by the first argument, or the app's reader
// when it is absent or "-".
func readInput(cctx *cli.Context) ([]byte, error) {
	name := cctx.Args().First()
	if name == "" || name == "-" {
		return ioutil.ReadAll(cctx.App.Reader)
	}
	return ioutil.ReadFile(name)
}

func cidArg(cctx *cli.Context, i int) (cid.Cid, error) {
	s := cctx.Args().Get(i)
	if s == "" {
		return cid.Undef, xerrors.New("missing cid argument")
	}
	c, err := cid.Decode(s)
	if err != nil {
		return cid.Undef, xerrors.Errorf("invalid cid %q: %w", s, err)
	}
	return c, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printConfigValue(w io.Writer, v interface{}) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		rv = rv.Elem()
	}
	if rv.Kind() == reflect.Struct {
		return toml.NewEncoder(w).Encode(v)
	}
	_, err := fmt.Fprintln(w, v)
	return err
}
