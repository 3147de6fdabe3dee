// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
)

func main() {
	fmt.Println("🚀 go-carequeue - Offline Writes for Care Apps")
	fmt.Println("==============================================")
	fmt.Println()
	fmt.Println("go-carequeue keeps a care app's writes safe while the device is offline:")
	fmt.Println("writes are queued on the device, replayed in order when connectivity returns,")
	fmt.Println("and dropped with a notice when the server refuses them.")
	fmt.Println()

	fmt.Println("📦 Packages:")
	fmt.Println("   carequeue/  client: durable queue, replay, sync loop, paginated list cache")
	fmt.Println("   carestore/  server: document store (Postgres or memory), Redis list cache, JWT")
	fmt.Println()

	fmt.Println("📚 Available Examples:")
	fmt.Println()
	fmt.Println("1. 🌐 Document Server (examples/carestore_server/)")
	fmt.Println("   HTTP document store with owner rules, keyset pagination and presence")
	fmt.Println("   Run: go run ./examples/carestore_server")
	fmt.Println()

	fmt.Println("2. 📱 Care App Simulator (examples/care_flow/)")
	fmt.Println("   Offline/online, permission drop, user switch and paginated browse scenarios")
	fmt.Println("   Run: go run ./examples/care_flow run --scenario all")
	fmt.Println()
}
