// Command client is the interactive terminal client for the secure chat
// relay. It registers with a server, waits for the shared key, and then
// encrypts everything it sends and decrypts everything it receives.
package main

import (
	"bufio"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/gorilla/websocket"

	"github.com/Izde13/chat-seguro/internal/crypto"
	"github.com/Izde13/chat-seguro/internal/server"
)

func main() {
	fmt.Println("=== CLIENTE DE CHAT SEGURO ===")

	reader := bufio.NewReader(os.Stdin)
	serverURL := promptServerURL(reader)
	username := promptLine(reader, "Tu nombre de usuario: ")
	if username == "" {
		username = "Anónimo"
	}

	if err := run(serverURL, username); err != nil {
		color.Red("❌ %v", err)
		os.Exit(1)
	}
}

func promptLine(reader *bufio.Reader, prompt string) string {
	fmt.Print(prompt)
	line, err := reader.ReadString('\n')
	if err != nil {
		return ""
	}
	return strings.TrimSpace(line)
}

// promptServerURL asks whether the server is exposed through an ngrok
// tunnel (which forces wss) or reachable directly on the LAN.
func promptServerURL(reader *bufio.Reader) string {
	useNgrok := strings.EqualFold(promptLine(reader, "¿Usar ngrok? (y/n): "), "y")

	if useNgrok {
		host := promptLine(reader, "URL de ngrok (ej: abc123.ngrok.app): ")
		url := normalizeNgrokURL(host)
		fmt.Printf("👉 Usando WSS obligatorio con ngrok: %s\n", url)
		return url
	}

	host := promptLine(reader, "Host del servidor (localhost): ")
	if host == "" {
		host = "localhost"
	}
	port := promptLine(reader, "Puerto del servidor (8765): ")
	if port == "" {
		port = "8765"
	}
	return fmt.Sprintf("ws://%s:%s/ws", host, port)
}

// normalizeNgrokURL turns whatever the user pasted (bare host, https or
// http URL) into a wss endpoint pointing at the /ws path.
func normalizeNgrokURL(host string) string {
	url := host
	switch {
	case strings.HasPrefix(url, "wss://"):
	case strings.HasPrefix(url, "https://"):
		url = strings.Replace(url, "https://", "wss://", 1)
	case strings.HasPrefix(url, "http://"):
		url = strings.Replace(url, "http://", "wss://", 1)
	default:
		url = "wss://" + url
	}
	if !strings.HasSuffix(url, "/ws") {
		url = strings.TrimSuffix(url, "/") + "/ws"
	}
	return url
}

type chatClient struct {
	conn     *websocket.Conn
	cipher   *crypto.Cipher
	username string
	keyReady chan struct{}
}

func run(serverURL, username string) error {
	fmt.Printf("Conectando a %s...\n", serverURL)

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	if strings.HasPrefix(serverURL, "wss://") {
		// Demo only: ngrok certificates are accepted without strict
		// verification. Do not ship this to production.
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	conn, resp, err := dialer.Dial(serverURL, nil)
	if resp != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return fmt.Errorf("error de conexión: %w", err)
	}
	defer conn.Close()

	c := &chatClient{
		conn:     conn,
		username: username,
		keyReady: make(chan struct{}),
	}

	if err := conn.WriteJSON(server.ClientMessage{Type: server.TypeRegister, Username: username}); err != nil {
		return fmt.Errorf("error al registrarse: %w", err)
	}

	color.Green("✅ Conectado como %s", username)
	fmt.Println("Esperando clave de cifrado del servidor...")

	listenDone := make(chan struct{})
	go func() {
		defer close(listenDone)
		c.listen()
	}()

	select {
	case <-c.keyReady:
	case <-listenDone:
		return fmt.Errorf("conexión cerrada antes de recibir la clave")
	case <-time.After(15 * time.Second):
		return fmt.Errorf("el servidor no envió la clave de cifrado")
	}

	color.Cyan("🔐 Canal seguro establecido. Escribe tu mensaje (o 'exit' para salir).")
	c.inputLoop(listenDone)
	return nil
}

// listen receives server events until the connection closes and renders
// them to the terminal.
func (c *chatClient) listen() {
	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				color.Yellow("🔌 Conexión cerrada por el servidor")
			} else {
				color.Red("❌ Error escuchando mensajes: %v", err)
			}
			return
		}

		var event server.Event
		if err := json.Unmarshal(raw, &event); err != nil {
			color.Red("ℹ️ Mensaje no reconocido: %s", raw)
			continue
		}
		c.handleEvent(event)
	}
}

func (c *chatClient) handleEvent(event server.Event) {
	switch event.Type {
	case server.TypeEncryptionKey:
		cipher, err := crypto.NewCipherFromBase64Key(event.Key)
		if err != nil {
			color.Red("❌ Clave inválida recibida")
			return
		}
		if c.cipher == nil {
			c.cipher = cipher
			close(c.keyReady)
		}

	case server.TypeChatMessage:
		content := "[Mensaje cifrado - error al descifrar]"
		if c.cipher != nil {
			if decrypted, err := c.cipher.Decrypt(event.Content); err == nil {
				content = decrypted
			}
		}
		fmt.Printf("[%s] %s: %s\n", formatTimestamp(event.Timestamp), color.HiWhiteString(event.Username), content)

	case server.TypeUserJoined:
		color.Green("🟢 %s se unió al chat", event.Username)

	case server.TypeUserLeft:
		color.Red("🔴 %s salió del chat", event.Username)

	case server.TypeUserList:
		color.Cyan("👥 Usuarios conectados: %s", strings.Join(event.Users, ", "))

	case server.TypeError:
		color.Red("❌ Error: %s", event.Message)

	default:
		fmt.Printf("ℹ️ Mensaje desconocido: %+v\n", event)
	}
}

func formatTimestamp(ts string) string {
	parsed, err := time.Parse(time.RFC3339, ts)
	if err != nil {
		return ""
	}
	return parsed.Local().Format("15:04:05")
}

// inputLoop reads stdin lines, encrypts them, and sends them until the user
// types exit or the connection drops.
func (c *chatClient) inputLoop(listenDone <-chan struct{}) {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-listenDone:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			message := strings.TrimSpace(line)
			if message == "" {
				continue
			}
			if strings.EqualFold(message, "exit") {
				_ = c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				fmt.Println("👋 ¡Hasta luego!")
				return
			}

			encrypted, err := c.cipher.Encrypt(message)
			if err != nil {
				color.Red("Error cifrando mensaje: %v", err)
				continue
			}
			if err := c.conn.WriteJSON(server.ClientMessage{Type: server.TypeChatMessage, Content: encrypted}); err != nil {
				color.Red("Error enviando mensaje: %v", err)
				return
			}
		}
	}
}
