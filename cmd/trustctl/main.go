// trustctl is an operator CLI for visitguard.
//
// Usage:
//
//	trustctl mask-email jane.doe@example.com
//	trustctl sign --secret s3cr3t payload.json
//	trustctl can RECEPTIONIST visitor:pii:view
//	trustctl token --key $JWT_KEY --role ADMIN
//	trustctl --addr localhost:8443 webhooks list
//	trustctl --addr localhost:8443 notify --subject host-1 --event host_alert --channel sms -d visitor.firstName=Jane
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// globals holds connection flags shared by the remote subcommands.
type globals struct {
	addr      string
	caPath    string
	insecure  bool
	plaintext bool
}

func newRootCmd() *cobra.Command {
	g := &globals{}
	root := &cobra.Command{
		Use:           "trustctl",
		Short:         "Operate visitguard: masking, hashing, signing, RBAC and the Guard API",
		Version:       fmt.Sprintf("%s (%s)", version, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&g.addr, "addr", "localhost:8443", "server address")
	root.PersistentFlags().StringVar(&g.caPath, "cacert", "", "CA cert (PEM)")
	root.PersistentFlags().BoolVar(&g.insecure, "insecure", false, "skip cert verify (dev)")
	root.PersistentFlags().BoolVar(&g.plaintext, "plaintext", false, "no TLS at all (dev)")

	// Local
	root.AddCommand(maskEmailCmd(), maskPhoneCmd(), hashCmd(), verifyHashCmd())
	root.AddCommand(encryptCmd(), decryptCmd())
	root.AddCommand(signCmd(), renderCmd(), permsCmd(), canCmd(), tokenCmd())

	// Remote
	root.AddCommand(notifyCmd(g), webhooksCmd(g), limitsCmd(g))
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
