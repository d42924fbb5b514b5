package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gamma-omg/manifesto-gpt/embedder"
	"github.com/gin-gonic/gin"
	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
)

func newRootCmd() *cobra.Command {
	var cfgPath string

	root := &cobra.Command{
		Use:           "manifesto",
		Short:         "Question answering over Nepali party manifestos",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "cfg/config.yaml", "Configuration file")

	load := func(cmd *cobra.Command) (*app, error) {
		return loadApp(cfgPath, cmd.OutOrStdout())
	}

	root.AddCommand(
		newServeCmd(load),
		newIngestCmd(load),
		newSetupCmd(load),
		newSearchCmd(load),
		newMCPCmd(load),
	)

	return root
}

type appLoader func(cmd *cobra.Command) (*app, error)

func newServeCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the streaming chat endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			svc, store, err := a.newService()
			if err != nil {
				return err
			}
			defer store.Close()

			gin.SetMode(gin.ReleaseMode)
			srv := NewHTTPServer(a.cfg.ServerAddr, NewChatRouter(a.log, svc))

			ctx, cancel := signalContext()
			defer cancel()

			errCh := make(chan error, 1)
			go func() {
				a.log.Info("chat server listening", "addr", a.cfg.ServerAddr)
				errCh <- srv.ListenAndServe()
			}()

			select {
			case err = <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer shutdownCancel()

			return srv.Shutdown(shutdownCtx)
		},
	}
}

func newIngestCmd(load appLoader) *cobra.Command {
	var watch bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Extract, chunk, embed and upload the manifesto corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			emb, err := a.newEmbedder()
			if err != nil {
				return err
			}

			store, err := a.newStore(emb)
			if err != nil {
				return err
			}
			defer store.Close()

			reg, err := a.newRegistry(emb, store)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()

			if err = reg.Sync(ctx); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "Ingestion complete!")

			if !watch {
				return nil
			}

			if err = reg.Watch(ctx); err != nil {
				return err
			}
			fmt.Fprintf(a.out, "Watching %s for changes\n", a.cfg.DocRoot)

			<-ctx.Done()
			return nil
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "Keep running and re-ingest documents when they change")

	return cmd
}

func newSetupCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "setup",
		Short: "Create the vector collection and check the embedding dimension",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			emb, err := a.newEmbedder()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()

			if _, err = emb.EmbedQuery(ctx, "dimension probe"); err != nil {
				if errors.Is(err, embedder.ErrDimensionMismatch) {
					return fmt.Errorf("model %s does not produce %d-dimensional vectors: %w",
						a.cfg.EmbeddingModel, a.cfg.EmbeddingDim, err)
				}
				return err
			}

			store, err := a.newStore(emb)
			if err != nil {
				return err
			}
			defer store.Close()

			n, err := store.Count(ctx)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Collection %q is ready (%d dimensions, %d records)\n",
				a.cfg.Collection, a.cfg.EmbeddingDim, n)
			return nil
		},
	}
}

func newSearchCmd(load appLoader) *cobra.Command {
	var party string
	var top int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Run a retrieval query and print the matching passages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			svc, store, err := a.newService()
			if err != nil {
				return err
			}
			defer store.Close()

			res, err := svc.Search(cmd.Context(), args[0], party, top)
			if err != nil {
				return err
			}

			fmt.Fprintf(a.out, "Found %d matches\n", len(res))
			for i, m := range res {
				fmt.Fprintf(a.out, "\n%d. [%.4f] %s (%s)\n%s\n", i+1, m.Score, m.PartyID, m.Source, preview(m.Text))
			}

			return nil
		},
	}
	cmd.Flags().StringVar(&party, "party", "", "Party id to search in; empty searches every party")
	cmd.Flags().IntVar(&top, "top", 3, "Number of passages to print")

	return cmd
}

func newMCPCmd(load appLoader) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the search_manifesto MCP tool over SSE",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := load(cmd)
			if err != nil {
				return err
			}

			svc, store, err := a.newService()
			if err != nil {
				return err
			}
			defer store.Close()

			srv := NewSearchServer(svc, NewRoutes(a.cfg.Parties, a.cfg.OCRFiles).IDs())
			sse := server.NewSSEServer(srv, server.WithBaseURL(fmt.Sprintf("http://%s", a.cfg.MCPAddr)))

			a.log.Info("mcp server listening", "addr", a.cfg.MCPAddr)
			return sse.Start(a.cfg.MCPAddr)
		},
	}
}
