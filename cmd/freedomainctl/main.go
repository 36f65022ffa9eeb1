package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"starkvoucher/cmd/internal/passphrase"
	"starkvoucher/crypto"
	"starkvoucher/ledger"
	"starkvoucher/naming"
	"starkvoucher/services/freedomain/config"
	"starkvoucher/voucher"
)

const (
	keygenCommand = "keygen"
	pubkeyCommand = "pubkey"
	importCommand = "import"
	showCommand   = "show"
	hashCommand   = "hash"

	defaultConfig   = "./freedomaind.yaml"
	defaultKeystore = "signer.keystore"
	provisionBatch  = 1000
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case keygenCommand:
		err = runKeygen(os.Args[2:])
	case pubkeyCommand:
		err = runPubkey(os.Args[2:])
	case importCommand:
		err = runImport(os.Args[2:])
	case showCommand:
		err = runShow(os.Args[2:])
	case hashCommand:
		err = runHash(os.Args[2:])
	default:
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runKeygen(args []string) error {
	fs := flag.NewFlagSet(keygenCommand, flag.ExitOnError)
	out := fs.String("out", defaultKeystore, "Output path for the encrypted signer keystore")
	passEnv := fs.String("pass-env", config.EnvKeystorePassphrase, "Environment variable containing the keystore passphrase")
	force := fs.Bool("force", false, "Overwrite an existing keystore file")
	fs.Parse(args)

	if !*force {
		if _, err := os.Stat(*out); err == nil {
			return fmt.Errorf("keystore %s already exists (use -force to overwrite)", *out)
		} else if !errors.Is(err, os.ErrNotExist) {
			return err
		}
	}

	pass, err := passphrase.NewSource(*passEnv, passphrase.WithConfirmation(), passphrase.WithLabel("new signer keystore")).Get()
	if err != nil {
		return err
	}
	key, err := crypto.GeneratePrivateKey(nil)
	if err != nil {
		return fmt.Errorf("generate key: %w", err)
	}
	if err := crypto.SaveToKeystore(*out, key, pass, nil); err != nil {
		return err
	}
	fmt.Printf("Keystore written to %s\n", *out)
	fmt.Printf("Public key: %s\n", key.PubKey().X().Hex())
	return nil
}

func runPubkey(args []string) error {
	fs := flag.NewFlagSet(pubkeyCommand, flag.ExitOnError)
	keystorePath := fs.String("keystore", defaultKeystore, "Path to the encrypted signer keystore")
	passEnv := fs.String("pass-env", config.EnvKeystorePassphrase, "Environment variable containing the keystore passphrase")
	fs.Parse(args)

	pass, err := passphrase.NewSource(*passEnv, passphrase.WithLabel("signer keystore")).Get()
	if err != nil {
		return err
	}
	key, err := crypto.LoadFromKeystore(*keystorePath, pass)
	if err != nil {
		return err
	}
	fmt.Println(key.PubKey().X().Hex())
	return nil
}

func runImport(args []string) error {
	fs := flag.NewFlagSet(importCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the freedomaind config file")
	in := fs.String("in", "", "File with one coupon code per line (- for stdin)")
	fs.Parse(args)

	if strings.TrimSpace(*in) == "" {
		return errors.New("-in is required")
	}
	var src io.Reader = os.Stdin
	if *in != "-" {
		f, err := os.Open(*in)
		if err != nil {
			return err
		}
		defer f.Close()
		src = f
	}
	codes, err := readCodes(src)
	if err != nil {
		return err
	}

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	added, err := provision(context.Background(), store, codes)
	if err != nil {
		return err
	}
	fmt.Printf("Imported %d new coupon codes (%d read)\n", added, len(codes))
	return nil
}

func runShow(args []string) error {
	fs := flag.NewFlagSet(showCommand, flag.ExitOnError)
	configPath := fs.String("config", defaultConfig, "Path to the freedomaind config file")
	code := fs.String("code", "", "Coupon code to inspect")
	fs.Parse(args)

	store, err := openStore(*configPath)
	if err != nil {
		return err
	}
	defer store.Close()

	coupon, err := store.Lookup(context.Background(), strings.TrimSpace(*code))
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(coupon)
}

func runHash(args []string) error {
	fs := flag.NewFlagSet(hashCommand, flag.ExitOnError)
	addr := fs.String("addr", "", "Claimant Starknet address (hex or decimal)")
	domain := fs.String("domain", "", "Root domain, e.g. alice.stark")
	code := fs.String("code", "", "Decimal coupon code")
	constant := fs.String("constant", voucher.DefaultCampaignConstant.String(), "Campaign constant (hex or decimal)")
	minLabel := fs.Int("min-label", voucher.DefaultMinLabelLength, "Shortest label the campaign accepts")
	fs.Parse(args)

	msg, encoded, err := voucherMessage(*addr, *domain, *code, *constant, *minLabel)
	if err != nil {
		return err
	}
	fmt.Printf("domain_encoded: %s\n", encoded.Hex())
	fmt.Printf("message:        %s\n", msg.Hex())
	return nil
}

// readCodes returns the non-blank, non-comment lines of r. Every code must be
// a decimal numeral because the service signs over it as a field element.
func readCodes(r io.Reader) ([]string, error) {
	var codes []string
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		code := strings.TrimSpace(scanner.Text())
		if code == "" || strings.HasPrefix(code, "#") {
			continue
		}
		if _, err := crypto.FeltFromCoupon(code); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		codes = append(codes, code)
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return codes, nil
}

func provision(ctx context.Context, store ledger.Store, codes []string) (int, error) {
	total := 0
	for start := 0; start < len(codes); start += provisionBatch {
		end := start + provisionBatch
		if end > len(codes) {
			end = len(codes)
		}
		added, err := store.Provision(ctx, codes[start:end]...)
		if err != nil {
			return total, fmt.Errorf("provision codes %d-%d: %w", start, end, err)
		}
		total += added
	}
	return total, nil
}

// voucherMessage recomputes the signed message for a request, for checking
// vouchers against an on-chain verifier.
func voucherMessage(addr, domain, code, constant string, minLabelLength int) (crypto.Felt, crypto.Felt, error) {
	address, err := crypto.ParseFelt(addr)
	if err != nil {
		return crypto.Felt{}, crypto.Felt{}, fmt.Errorf("addr: %w", err)
	}
	_, label, err := voucher.SplitDomain(domain, minLabelLength)
	if err != nil {
		return crypto.Felt{}, crypto.Felt{}, fmt.Errorf("domain %q: %w", domain, err)
	}
	encoded, err := naming.EncodeLabel(label)
	if err != nil {
		return crypto.Felt{}, crypto.Felt{}, fmt.Errorf("domain: %w", err)
	}
	couponFelt, err := crypto.FeltFromCoupon(code)
	if err != nil {
		return crypto.Felt{}, crypto.Felt{}, err
	}
	campaign, err := crypto.ParseFelt(constant)
	if err != nil {
		return crypto.Felt{}, crypto.Felt{}, fmt.Errorf("constant: %w", err)
	}
	return crypto.HashChain(address, encoded, couponFelt, campaign), encoded, nil
}

func openStore(configPath string) (ledger.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	return ledger.Open(cfg.Ledger)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: freedomainctl <command> [flags]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	fmt.Fprintf(os.Stderr, "  %-8s generate an encrypted signer keystore\n", keygenCommand)
	fmt.Fprintf(os.Stderr, "  %-8s print the public key of a keystore\n", pubkeyCommand)
	fmt.Fprintf(os.Stderr, "  %-8s provision coupon codes into the configured ledger\n", importCommand)
	fmt.Fprintf(os.Stderr, "  %-8s print the stored state of a coupon code\n", showCommand)
	fmt.Fprintf(os.Stderr, "  %-8s compute the message a voucher signs\n", hashCommand)
}
