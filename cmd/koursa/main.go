// koursa is the command-line client for the Koursa academic tracking API.
package main

import "koursa/client/cmd/koursa/arg"

func main() {
	arg.Execute()
}
