package main

import (
	"encoding/json"
	"fmt"

	"github.com/MeteorsLiu/kvbridge/adapter"
	"github.com/MeteorsLiu/kvbridge/client"
	"github.com/MeteorsLiu/kvbridge/common/gorpc"
	"github.com/MeteorsLiu/kvbridge/config"
	"github.com/spf13/cobra"
)

func newCallCommand(cfgPath *string) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "call <setItem|getItem|removeItem|length|getAllKeys> [key] [value]",
		Short: "Send one storage command to a running bridge",
		Args:  cobra.RangeArgs(1, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.NewLoader(*cfgPath).Load()
			if err != nil {
				return err
			}
			if addr == "" {
				addr = cfg.RPC.ServerAddr
			}
			rpc, err := gorpc.NewGoRPCClient(addr)
			if err != nil {
				return err
			}
			c := client.NewClient(rpc, client.DisableRetry())
			defer c.Close()

			env, err := invoke(client.NewStorage(c), args)
			if err != nil {
				return err
			}
			out, err := json.Marshal(env)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "bridge rpc address (default rpc.server_addr)")
	return cmd
}

func arg(args []string, i int) string {
	if i < len(args) {
		return args[i]
	}
	return ""
}

func invoke(s *client.Storage, args []string) (adapter.Envelope, error) {
	switch args[0] {
	case "setItem":
		return s.SetItem(arg(args, 1), arg(args, 2))
	case "getItem":
		return s.GetItem(arg(args, 1))
	case "removeItem":
		return s.RemoveItem(arg(args, 1))
	case "length":
		return s.Length()
	case "getAllKeys":
		return s.GetAllKeys()
	}
	return adapter.Envelope{}, fmt.Errorf("unknown command %q", args[0])
}
