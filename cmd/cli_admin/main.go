package main

import (
	"bufio"
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"stexs-auth/internal/config"
	"stexs-auth/internal/db"
	"stexs-auth/internal/domain"
	"stexs-auth/internal/repository"
)

const clientSecretBytes = 32

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, _ := zap.NewDevelopment()
	defer logger.Sync()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer pool.Close()

	oauth2Repo := repository.NewPgOAuth2Repository(pool)

	for {
		fmt.Println("\n===== Administracion OAuth2 =====")
		fmt.Println("[1] Registrar cliente")
		fmt.Println("[2] Listar clientes")
		fmt.Println("[3] Listar conexiones de un usuario")
		fmt.Println("[4] Revocar conexion")
		fmt.Println("[5] Salir")
		fmt.Print("Selecciona una opcion: ")

		line, _ := reader.ReadString('\n')
		switch strings.TrimSpace(line) {
		case "1":
			if err := registerClientFlow(ctx, reader, oauth2Repo, logger); err != nil {
				fmt.Printf("Error registrando cliente: %v\n", err)
			}
		case "2":
			if err := listClients(ctx, pool); err != nil {
				fmt.Printf("Error listando clientes: %v\n", err)
			}
		case "3":
			if err := listConnectionsFlow(ctx, reader, oauth2Repo); err != nil {
				fmt.Printf("Error listando conexiones: %v\n", err)
			}
		case "4":
			if err := revokeConnectionFlow(ctx, reader, oauth2Repo, logger); err != nil {
				fmt.Printf("Error revocando conexion: %v\n", err)
			}
		case "5":
			return
		default:
			fmt.Println("Opcion invalida.")
		}
	}
}

func readLine(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, _ := reader.ReadString('\n')
	return strings.TrimSpace(line)
}

// readScopes acepta una lista separada por comas; ignora entradas vacias.
func readScopes(reader *bufio.Reader, prompt string) []string {
	var scopes []string
	for _, s := range strings.Split(readLine(reader, prompt), ",") {
		if s = strings.TrimSpace(s); s != "" {
			scopes = append(scopes, s)
		}
	}
	return scopes
}

func registerClientFlow(ctx context.Context, reader *bufio.Reader, repo repository.OAuth2Repository, logger *zap.Logger) error {
	name := readLine(reader, "Nombre del cliente: ")
	redirectURL := readLine(reader, "Redirect URL: ")
	orgID := readLine(reader, "Organization ID (vacio genera uno): ")
	if orgID == "" {
		orgID = uuid.NewString()
	} else if _, err := uuid.Parse(orgID); err != nil {
		return fmt.Errorf("organization id invalido: %w", err)
	}
	userScopes := readScopes(reader, "Scopes de usuario (separados por coma): ")
	clientScopes := readScopes(reader, "Scopes de cliente (separados por coma): ")
	if name == "" || redirectURL == "" {
		return errors.New("nombre y redirect url son obligatorios")
	}

	raw := make([]byte, clientSecretBytes)
	if _, err := rand.Read(raw); err != nil {
		return fmt.Errorf("generar secreto: %w", err)
	}
	secret := hex.EncodeToString(raw)
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash secreto: %w", err)
	}

	client := domain.OAuth2Client{
		ID:             uuid.NewString(),
		ClientID:       uuid.NewString(),
		ClientSecret:   string(hash),
		Name:           name,
		RedirectURL:    redirectURL,
		OrganizationID: orgID,
		UserScopes:     userScopes,
		ClientScopes:   clientScopes,
		CreatedAt:      time.Now().UTC(),
	}
	if err := repo.CreateClient(ctx, client); err != nil {
		return err
	}
	logger.Info("oauth2 client registered", zap.String("client_id", client.ClientID))

	// El secreto solo se muestra una vez.
	fmt.Printf("client_id:     %s\n", client.ClientID)
	fmt.Printf("client_secret: %s\n", secret)
	return nil
}

func listClients(ctx context.Context, pool *pgxpool.Pool) error {
	const query = `
		SELECT client_id, name, redirect_url, created_at
		FROM oauth2_clients
		ORDER BY created_at DESC
	`
	rows, err := pool.Query(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var c domain.OAuth2Client
		if err := rows.Scan(&c.ClientID, &c.Name, &c.RedirectURL, &c.CreatedAt); err != nil {
			return err
		}
		fmt.Printf("%s  %-24s %s\n", c.ClientID, c.Name, c.RedirectURL)
	}
	return rows.Err()
}

func listConnectionsFlow(ctx context.Context, reader *bufio.Reader, repo repository.OAuth2Repository) error {
	userID := readLine(reader, "User ID: ")
	conns, err := repo.ListConnections(ctx, userID)
	if err != nil {
		return err
	}
	if len(conns) == 0 {
		fmt.Println("Sin conexiones.")
		return nil
	}
	for _, conn := range conns {
		fmt.Printf("%s  cliente=%s  scopes=%s  desde=%s\n",
			conn.ID, conn.ClientID, strings.Join(conn.Scopes, ","), conn.CreatedAt.Format(time.RFC3339))
	}
	return nil
}

func revokeConnectionFlow(ctx context.Context, reader *bufio.Reader, repo repository.OAuth2Repository, logger *zap.Logger) error {
	userID := readLine(reader, "User ID: ")
	connID := readLine(reader, "Connection ID: ")
	n, err := repo.DeleteConnection(ctx, connID, userID)
	if err != nil {
		return err
	}
	if n == 0 {
		fmt.Println("Conexion no encontrada.")
		return nil
	}
	logger.Info("oauth2 connection revoked by admin", zap.String("user_id", userID), zap.String("connection_id", connID))
	fmt.Println("Conexion revocada.")
	return nil
}
