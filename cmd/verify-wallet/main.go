// verify-wallet reconciles one wallet's entitlement balance against the
// transfers actually recorded on-chain and prints the result. With an
// operator key it can also submit a bundle payment first.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/joho/godotenv"

	"github.com/somniax/backend/internal/chain"
	"github.com/somniax/backend/internal/config"
	"github.com/somniax/backend/internal/entitlement"
	"github.com/somniax/backend/internal/wallet"
)

func main() {
	configPath := flag.String("config", "", "path to config.yaml")
	address := flag.String("address", "", "wallet address to verify")
	pay := flag.Bool("pay", false, "submit one bundle payment first (requires OPERATOR_PRIVATE_KEY)")
	flag.Parse()

	_ = godotenv.Load()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	}

	if !common.IsHexAddress(*address) {
		log.Fatalf("--address must be a valid wallet address, got %q", *address)
	}
	addr := common.HexToAddress(*address)

	trackerCfg, err := entitlement.ConfigFrom(cfg.Chain, cfg.Payment)
	if err != nil {
		log.Fatalf("payment configuration: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	explorer := chain.NewExplorerClient(cfg.Chain.ExplorerAPI)
	tracker := entitlement.NewTracker(trackerCfg, entitlement.NewMemoryStore(), explorer, nil)

	fmt.Printf("Wallet:    %s\n", addr.Hex())
	fmt.Printf("Recipient: %s\n", trackerCfg.Recipient.Hex())
	fmt.Printf("Price:     %s %s (%s wei)\n",
		cfg.Payment.PricePerBundle, cfg.Payment.TokenSymbol, trackerCfg.PriceWei.String())
	fmt.Println("---------------------------------------------------------")

	if *pay {
		key := os.Getenv("OPERATOR_PRIVATE_KEY")
		if key == "" {
			log.Fatal("--pay requires OPERATOR_PRIVATE_KEY")
		}
		client, err := chain.Dial(ctx, cfg.Chain.RPCURL)
		if err != nil {
			log.Fatalf("dial %s: %v", cfg.Chain.RPCURL, err)
		}
		defer client.Close()

		chainID, err := client.ChainID(ctx)
		if err != nil {
			log.Fatalf("query chain id: %v", err)
		}
		signer, err := wallet.NewKeySigner(key, client.Raw(), chainID)
		if err != nil {
			log.Fatalf("load operator key: %v", err)
		}
		hash, err := tracker.ProcessPayment(ctx, signer)
		if err != nil {
			log.Fatalf("payment failed: %v", err)
		}
		fmt.Printf("Payment submitted: %s\n", hash.Hex())
	}

	rec, err := tracker.Reconcile(ctx, addr)
	if err != nil {
		log.Fatalf("reconcile: %v", err)
	}

	fmt.Printf("Payments found:     %d\n", rec.TotalPayments)
	fmt.Printf("Messages purchased: %d\n", rec.TotalMessagesPurchased)
	fmt.Printf("Messages used:      %d\n", rec.MessagesUsed)
	fmt.Printf("Messages remaining: %d\n", rec.MessagesRemaining)
	if n := len(rec.Transactions); n > 0 {
		fmt.Printf("Latest payment:     %s\n", rec.Transactions[n-1])
	}
	fmt.Printf("Status:             %s\n", tracker.Status(addr))
}
