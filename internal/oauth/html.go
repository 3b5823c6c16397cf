package oauth

import (
	"fmt"
	"html"
	"time"
)

// The pages below are pure rendering: string in, markup out. No handshake
// logic belongs here.

// renderCompletionPage renders the page shown after a successful CLI login.
func renderCompletionPage() string {
	return `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Login Successful - Hive</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            align-items: center;
            justify-content: center;
            min-height: 100vh;
            margin: 0;
            background: #f4f4f4;
            color: #222;
        }
        .container {
            text-align: center;
            padding: 3rem;
            background: #fff;
            border-radius: 8px;
            box-shadow: 0 1px 4px rgba(0, 0, 0, 0.15);
            max-width: 420px;
        }
        .checkmark { font-size: 3rem; color: #2e8540; }
        p { color: #555; line-height: 1.5; }
    </style>
</head>
<body>
    <div class="container">
        <div class="checkmark">&#10003;</div>
        <h1>Login Successful</h1>
        <p>You are now signed in to Hive.</p>
        <p>You can close this window and return to your terminal.</p>
    </div>
</body>
</html>`
}

// renderErrorPage renders a generic failure page. The message must not
// contain IdP error details; callers pass a fixed, user-safe string.
func renderErrorPage(message string) string {
	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Login Failed - Hive</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            display: flex;
            align-items: center;
            justify-content: center;
            min-height: 100vh;
            margin: 0;
            background: #f4f4f4;
            color: #222;
        }
        .container {
            text-align: center;
            padding: 3rem;
            background: #fff;
            border-radius: 8px;
            box-shadow: 0 1px 4px rgba(0, 0, 0, 0.15);
            max-width: 420px;
        }
        .cross { font-size: 3rem; color: #d83933; }
        p { color: #555; line-height: 1.5; }
    </style>
</head>
<body>
    <div class="container">
        <div class="cross">&#10007;</div>
        <h1>Login Failed</h1>
        <p>%s</p>
        <p>Please return to your terminal and try again.</p>
    </div>
</body>
</html>`, html.EscapeString(message))
}

// renderPasscodePage renders the one-time passcode hand-off page with a
// copy button and a countdown matching the passcode TTL.
func renderPasscodePage(passcode string, ttl time.Duration) string {
	display := passcode
	if display == "" {
		display = "Not Available"
	}

	return fmt.Sprintf(`<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>One-Time Passcode - Hive</title>
    <style>
        body {
            font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif;
            padding: 2rem;
            color: #222;
        }
        .passcode-container {
            display: flex;
            align-items: center;
            gap: 0.5rem;
        }
        #passcode {
            font-family: ui-monospace, SFMono-Regular, Menlo, monospace;
            font-size: 1.2rem;
        }
        .copy-button {
            cursor: pointer;
            padding: 0.3rem 0.6rem;
            border: 1px solid #ccc;
            border-radius: 4px;
            background-color: #f5f5f5;
        }
        .copy-button:hover { background-color: #e0e0e0; }
        #countdown { color: #777; margin-top: 1rem; }
    </style>
</head>
<body>
    <h3>Signing in to Hive</h3>
    <div class="passcode-container">
        <strong>Your one-time passcode is:</strong>
        <span id="passcode">%s</span>
        <button class="copy-button" onclick="copyPasscode()">Copy</button>
    </div>
    <p id="countdown">This passcode expires in <span id="remaining">%d</span> seconds.</p>

    <script>
        function copyPasscode() {
            const text = document.getElementById('passcode').innerText;
            navigator.clipboard.writeText(text).catch(function(err) {
                console.log('Failed to copy passcode:', err);
            });
        }

        let remaining = %d;
        const el = document.getElementById('remaining');
        const timer = setInterval(function() {
            remaining -= 1;
            if (remaining <= 0) {
                clearInterval(timer);
                document.getElementById('countdown').innerText = 'This passcode has expired.';
                return;
            }
            el.innerText = remaining;
        }, 1000);
    </script>
</body>
</html>`, html.EscapeString(display), int(ttl.Seconds()), int(ttl.Seconds()))
}
