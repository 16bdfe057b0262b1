//go:build !linux

package catalog

import "os"

func fadviseSequential(*os.File) {}
