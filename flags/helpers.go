// Copyright 2020 The go-ethereum Authors
// This file is part of go-ethereum.
//
// go-ethereum is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// go-ethereum is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with go-ethereum. If not, see <http://www.gnu.org/licenses/>.

package flags

import (
	"os"

	cli "gopkg.in/urfave/cli.v1"
)

// NewApp creates an app with sane defaults. Commands and global flags are
// registered by the launcher.
func NewApp(gitCommit, usage string) *cli.App {
	app := cli.NewApp()
	app.Name = "oracle"
	app.Usage = usage
	app.Version = "0.2.0"
	if len(gitCommit) >= 8 {
		app.Version += "-" + gitCommit[:8]
	}
	app.Writer = os.Stdout
	return app
}

// AllGlobalFlags are the flags accepted before any command.
func AllGlobalFlags() []cli.Flag {
	var res []cli.Flag
	res = append(res, CommonFlags()...)
	res = append(res, ChainFlags()...)
	res = append(res, CommitteeFlags()...)
	return res
}
