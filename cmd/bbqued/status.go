package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	statusAddr  string
	statusToken string
)

func statusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "query a running bbqued's admin API and print its state",
		RunE:  runStatus,
	}
	cmd.Flags().StringVar(&statusAddr, "addr", "http://127.0.0.1:8338", "admin API base address")
	cmd.Flags().StringVar(&statusToken, "token", "", "bearer token for the admin API")
	return cmd
}

type statusAppView struct {
	UID   string `json:"uid"`
	State string `json:"state"`
}

type statusResourceView struct {
	Path      string `json:"path"`
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	client := &http.Client{Timeout: 10 * time.Second}

	fmt.Println(color.New(color.Bold).Sprint("bbqued status"))
	fmt.Println(color.New(color.Bold).Sprint("============="))

	healthy := probeHealth(client)
	if healthy {
		fmt.Printf("daemon:    %s (%s)\n", color.GreenString("reachable"), statusAddr)
	} else {
		fmt.Printf("daemon:    %s (%s)\n", color.RedString("unreachable"), statusAddr)
		return nil
	}

	var apps struct {
		Apps []statusAppView `json:"apps"`
	}
	if err := fetchJSON(client, "/api/v1/apps", &apps); err != nil {
		fmt.Printf("apps:      %s\n", color.RedString(err.Error()))
	} else {
		fmt.Printf("apps:      %d registered\n", len(apps.Apps))
		for _, a := range apps.Apps {
			fmt.Printf("  %-12s %s\n", a.UID, colorizeState(a.State))
		}
	}

	var resources struct {
		Resources []statusResourceView `json:"resources"`
	}
	if err := fetchJSON(client, "/api/v1/resources", &resources); err != nil {
		fmt.Printf("resources: %s\n", color.RedString(err.Error()))
	} else {
		fmt.Printf("resources: %d known\n", len(resources.Resources))
		for _, r := range resources.Resources {
			fmt.Printf("  %-20s %d/%d used (%d available)\n", r.Path, r.Used, r.Total, r.Available)
		}
	}
	return nil
}

func probeHealth(client *http.Client) bool {
	resp, err := client.Get(statusAddr + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func fetchJSON(client *http.Client, path string, out interface{}) error {
	req, err := http.NewRequest(http.MethodGet, statusAddr+path, nil)
	if err != nil {
		return err
	}
	if statusToken != "" {
		req.Header.Set("Authorization", "Bearer "+statusToken)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%s: unexpected status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func colorizeState(state string) string {
	switch state {
	case "RUNNING":
		return color.GreenString(state)
	case "SYNC":
		return color.YellowString(state)
	case "FINISHED":
		return color.New(color.Faint).Sprint(state)
	default:
		return state
	}
}
