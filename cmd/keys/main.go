package keys

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	logger "github.com/sirupsen/logrus"

	"workflowengine/src/database"
	"workflowengine/src/model"
	"workflowengine/src/repository"
	"workflowengine/src/security"
)

func printUsage() {
	fmt.Println("Available commands:")
	fmt.Println("  help                             Show this help message")
	fmt.Println("  shutdown                         Exit the CLI")
	fmt.Println("  set_key <workflowID> <key> <secret>   Store encrypted exchange credentials on a workflow")
	fmt.Println("  activate <workflowID>            Mark the workflow active (requires set_key)")
	fmt.Println("  deactivate <workflowID>          Mark the workflow inactive")
	fmt.Println()
}

// Run is the interactive credentials CLI. Keys are encrypted before they
// touch the database; plaintext never leaves this process.
func Run() error {
	ctx, stop := signal.NotifyContext(
		context.Background(),
		os.Interrupt,
		syscall.SIGTERM,
	)
	defer stop()

	if err := database.InitMainDB(); err != nil {
		logger.WithError(err).Fatal("Failed to connect to database")
	}

	workflows := repository.NewWorkflowRepository()

	reader := bufio.NewScanner(os.Stdin)
	reader.Buffer(make([]byte, 0, 1024), 1024*1024)

	for {
		fmt.Print("cmd> ")

		if !reader.Scan() {
			return reader.Err()
		}

		line := strings.TrimSpace(reader.Text())
		if line == "" {
			continue
		}

		parts := strings.Fields(line)
		cmd := parts[0]

		switch cmd {

		case "shutdown":
			fmt.Println("Exiting CLI...")
			return nil

		case "help":
			printUsage()

		case "set_key":
			if len(parts) < 4 {
				printUsage()
				continue
			}
			workflowID, err := parseWorkflowID(parts[1])
			if err != nil {
				fmt.Println(err)
				continue
			}
			key, secret := parts[2], parts[3]

			encryptedKey, err := security.EncryptString(key)
			if err != nil {
				logger.WithError(err).Error("Failed to encrypt key")
				continue
			}
			encryptedSecret, err := security.EncryptString(secret)
			if err != nil {
				logger.WithError(err).Error("Failed to encrypt secret")
				continue
			}

			if err := workflows.UpdateCredentials(ctx, workflowID, encryptedKey, encryptedSecret); err != nil {
				logger.WithError(err).Error("Failed to store credentials")
				continue
			}
			fmt.Println("Credentials stored.")

		case "activate":
			if len(parts) < 2 {
				printUsage()
				continue
			}
			workflowID, err := parseWorkflowID(parts[1])
			if err != nil {
				fmt.Println(err)
				continue
			}

			workflow, err := workflows.FindByID(ctx, workflowID)
			if err != nil {
				logger.WithError(err).Error("Failed to fetch workflow")
				continue
			}
			if workflow == nil {
				fmt.Println("Workflow not found.")
				continue
			}
			if workflow.APIKeyHash == "" || workflow.APISecretHash == "" {
				fmt.Println("No credentials set, run set_key first.")
				continue
			}

			if err := workflows.UpdateStatus(ctx, workflowID, model.WorkflowStatusActive); err != nil {
				logger.WithError(err).Error("Failed to activate workflow")
			}

		case "deactivate":
			if len(parts) < 2 {
				printUsage()
				continue
			}
			workflowID, err := parseWorkflowID(parts[1])
			if err != nil {
				fmt.Println(err)
				continue
			}

			if err := workflows.UpdateStatus(ctx, workflowID, model.WorkflowStatusInactive); err != nil {
				logger.WithError(err).Error("Failed to deactivate workflow")
			}

		default:
			fmt.Println("Unknown command:", cmd)
			printUsage()
		}
	}
}

func parseWorkflowID(raw string) (uint, error) {
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid workflow id %q", raw)
	}
	return uint(id), nil
}
