package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/viper"
)

const splashScreen = `
  _ __ ___   ___ (_)_ __ ___
 | '_ ` + "`" + ` _ \ / _ \| | '__/ _ \
 | | | | | | (_) | | | |  __/
 |_| |_| |_|\___/|_|_|  \___|

   moiré pattern synthesis
`

func printSplash(w io.Writer) {
	if viper.GetBool("no_splash") {
		return
	}
	fmt.Fprint(w, splashScreen+"\n")
}
