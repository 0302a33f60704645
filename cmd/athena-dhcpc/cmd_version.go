package main

import (
	"fmt"
	"runtime"
)

type VersionCmd struct {
	BuildInfo bool `help:"Print build information." default:"false"`
}

func (v *VersionCmd) Run() error {
	fmt.Println("athena-dhcpc", Version)
	if v.BuildInfo {
		fmt.Println("Built by:", runtime.Version(), runtime.GOOS+"/"+runtime.GOARCH)
	}
	return nil
}
