// Command ncatool inspects and patches NCA-style encrypted content
// archives.
package main

import (
	"github.com/nxdt-go/ncatool/internal/cli/shared"

	_ "github.com/nxdt-go/ncatool/internal/cli/dumpsectioncmd"
	_ "github.com/nxdt-go/ncatool/internal/cli/patchcmd"
	_ "github.com/nxdt-go/ncatool/internal/cli/verifycmd"
)

func main() {
	shared.Main()
}
