package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"net"
	"time"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:7777", "engine order-entry address")
	totalOrders := flag.Int("orders", 10000, "number of orders to submit")
	basePrice := flag.Float64("base-price", 100.0, "mid price used for randomization")
	spread := flag.Float64("spread", 5.0, "max distance from the mid price")
	maxQty := flag.Int("max-qty", 200, "max quantity per order")
	cancelEvery := flag.Int("cancel-every", 20, "cancel a recent order every N submissions (0 disables)")
	rate := flag.Int("rate", 0, "orders per second (0 = as fast as possible)")
	seed := flag.Int64("seed", time.Now().UnixNano(), "seed for the random stream")
	flag.Parse()

	rng := rand.New(rand.NewSource(*seed))

	conn, err := net.Dial("tcp", *addr)
	if err != nil {
		log.Fatalf("Failed to connect to %s: %v", *addr, err)
	}
	defer conn.Close()

	w := bufio.NewWriter(conn)

	var delay time.Duration
	if *rate > 0 {
		delay = time.Second / time.Duration(*rate)
	}

	type sent struct {
		side  string
		price string
		qty   int
	}
	var recent []sent

	start := time.Now()
	for i := 0; i < *totalOrders; i++ {
		side := "BUY"
		if rng.Intn(2) == 1 {
			side = "SELL"
		}
		price := fmt.Sprintf("%.2f", *basePrice+(rng.Float64()*2-1)**spread)
		qty := 1 + rng.Intn(*maxQty)

		if _, err := fmt.Fprintf(w, "ADD,%s,%s,%d\n", side, price, qty); err != nil {
			log.Fatalf("Write failed after %d orders: %v", i, err)
		}
		recent = append(recent, sent{side, price, qty})

		if *cancelEvery > 0 && i%*cancelEvery == *cancelEvery-1 {
			victim := recent[rng.Intn(len(recent))]
			if _, err := fmt.Fprintf(w, "CANCEL,%s,%s,%d\n", victim.side, victim.price, victim.qty); err != nil {
				log.Fatalf("Write failed on cancel: %v", err)
			}
		}
		if len(recent) > 256 {
			recent = recent[1:]
		}

		if delay > 0 {
			w.Flush()
			time.Sleep(delay)
		}
	}

	if err := w.Flush(); err != nil {
		log.Fatalf("Flush failed: %v", err)
	}

	elapsed := time.Since(start)
	fmt.Printf("Submitted %d orders in %s (%.0f orders/s)\n",
		*totalOrders, elapsed.Round(time.Millisecond),
		float64(*totalOrders)/elapsed.Seconds())
}
