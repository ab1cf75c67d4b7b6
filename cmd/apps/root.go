/*
 Copyright 2023 NanaFS Authors.

 Licensed under the Apache License, Version 2.0 (the "License");
 you may not use this file except in compliance with the License.
 You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

 Unless required by applicable law or agreed to in writing, software
 distributed under the License is distributed on an "AS IS" BASIS,
 WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 See the License for the specific language governing permissions and
 limitations under the License.
*/

package apps

import (
	"fmt"
	"path"
	"time"

	"github.com/hyponet/eventbus"
	"github.com/spf13/cobra"

	"github.com/basenana/davstore/cmd/apps/apis"
	configapp "github.com/basenana/davstore/cmd/apps/config"
	"github.com/basenana/davstore/config"
	"github.com/basenana/davstore/pkg/connector"
	"github.com/basenana/davstore/pkg/events"
	"github.com/basenana/davstore/utils"
	"github.com/basenana/davstore/utils/logger"
	"github.com/basenana/davstore/utils/metrics"
)

func init() {
	RootCmd.AddCommand(daemonCmd)
	RootCmd.AddCommand(versionCmd)
	RootCmd.AddCommand(configapp.RunCmd)
	RootCmd.PersistentFlags().StringVar(&config.FilePath, "config", path.Join(config.LocalUserPath(), config.DefaultConfigBase), "davstore config file")
}

var RootCmd = &cobra.Command{
	Use:   "davstore",
	Short: "davstore resource store",
	Long:  `Transactional resource store with canonical ids and pluggable backends.`,
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

var daemonCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start server service",
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.NewConfigLoader().GetConfig()
		if err != nil {
			panic(err)
		}
		if cfg.Debug {
			logger.SetDebug(cfg.Debug)
		}
		if err = metrics.InitSentry(cfg.SentryDSN); err != nil {
			panic(err)
		}
		defer metrics.Flush()

		store, err := connector.New(cfg)
		if err != nil {
			panic(err)
		}
		defer store.Close()

		stop := utils.HandleTerminalSignal()
		run(store, cfg, stop)
	},
}

func run(store *connector.Store, cfg config.Config, stopCh chan struct{}) {
	log := logger.NewLogger("davstore")
	log.Infow("starting", "version", config.VersionInfo().String(), "backend", store.BackendName(), "prefix", store.Namespace().Prefix)

	lid := eventbus.Subscribe(events.ResourceActionTopic(events.ActionTypeInvalidated), func(evt *events.Event) {
		log.Debugw("resource invalidated", "id", evt.RefID, "action", evt.Action, "principal", evt.Principal)
	})
	defer eventbus.Unsubscribe(lid)

	if cfg.Api.Enable {
		s, err := apis.NewApiServer(store, cfg)
		if err != nil {
			log.Panicw("init http server failed", "err", err.Error())
		}
		go s.Run(stopCh)
	}

	if cfg.DAVServer != nil && cfg.DAVServer.Enable {
		d, err := apis.NewDAVServer(cfg)
		if err != nil {
			log.Panicw("init dav server failed", "err", err.Error())
		}
		go d.Run(stopCh)
	}

	log.Info("started")
	<-stopCh
	// let the servers drain
	time.Sleep(time.Second * 2)
	log.Info("stopped")
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "View version information",
	Run: func(cmd *cobra.Command, args []string) {
		vInfo := config.VersionInfo()
		fmt.Printf("Version: %s\n", vInfo.Tag)
		fmt.Printf("GitCommit: %s\n", vInfo.Git)
		fmt.Printf("GoVersion: %s\n", vInfo.Go)
	},
}
